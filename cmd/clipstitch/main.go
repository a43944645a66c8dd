// Package main is the entry point for the clipstitch application.
package main

import (
	"errors"
	"os"

	"github.com/clipstitch/clipstitch/cmd/clipstitch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, cmd.ErrBadArguments) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
