// Package util provides small shared helpers for locating external tools.
package util

import (
	"fmt"
	"os"
	"os/exec"
)

// FindBinary locates an executable by name. An environment variable
// override is checked first, then the working directory, then PATH.
// Candidates must exist and carry an execute bit.
func FindBinary(name string, envVar string) (string, error) {
	if envVar != "" {
		if path := os.Getenv(envVar); path != "" && isExecutable(path) {
			return path, nil
		}
	}

	if local := "./" + name; isExecutable(local) {
		return local, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %q not found in %s, working directory, or PATH", name, envVarLabel(envVar))
}

func envVarLabel(envVar string) string {
	if envVar == "" {
		return "environment"
	}
	return "$" + envVar
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
