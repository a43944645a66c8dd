// Package startup provides utilities for application startup tasks.
package startup

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// JobDirPrefix is the prefix used for per-job scratch directories.
const JobDirPrefix = "job-"

// DefaultMaxAge is how old a scratch directory must be before it is
// considered orphaned. A running job never lives this long.
const DefaultMaxAge = time.Hour

// CleanupOrphanedJobDirs removes scratch directories left behind by jobs
// that did not shut down cleanly. It looks for directories matching the
// pattern "job-*" in the temp directory that are older than maxAge.
//
// Returns the number of directories removed and any error encountered.
func CleanupOrphanedJobDirs(logger *slog.Logger, tempDir string, maxAge time.Duration) (int, error) {
	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		logger.Debug("temp directory does not exist, skipping cleanup",
			slog.String("path", tempDir),
		)
		return 0, nil
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !strings.HasPrefix(entry.Name(), JobDirPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		dirPath := filepath.Join(tempDir, entry.Name())
		if err := os.RemoveAll(dirPath); err != nil {
			logger.Warn("failed to remove orphaned scratch dir",
				slog.String("path", dirPath),
				slog.String("error", err.Error()),
			)
			continue
		}

		logger.Debug("removed orphaned scratch dir",
			slog.String("path", dirPath),
			slog.Time("modified", info.ModTime()),
		)
		removed++
	}

	return removed, nil
}
