package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// videoExtensions are the file types the store serves and prunes.
var videoExtensions = map[string]bool{
	".mp4": true,
}

// VideoInfo describes one generated video in the output directory.
type VideoInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// VideoStore serves and prunes generated videos. Filenames arrive from
// HTTP requests, so every lookup goes through the sandbox.
type VideoStore struct {
	sandbox *Sandbox
}

// NewVideoStore creates a VideoStore rooted at the output directory.
func NewVideoStore(outputDir string) (*VideoStore, error) {
	sandbox, err := NewSandbox(outputDir)
	if err != nil {
		return nil, fmt.Errorf("creating output sandbox: %w", err)
	}
	return &VideoStore{sandbox: sandbox}, nil
}

// Dir returns the absolute output directory.
func (v *VideoStore) Dir() string {
	return v.sandbox.BaseDir()
}

// Open opens a video by filename for serving.
func (v *VideoStore) Open(filename string) (*os.File, os.FileInfo, error) {
	if err := validateFilename(filename); err != nil {
		return nil, nil, err
	}

	f, err := v.sandbox.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("getting file info: %w", err)
	}
	return f, info, nil
}

// Exists reports whether a video with the given filename exists.
func (v *VideoStore) Exists(filename string) (bool, error) {
	if err := validateFilename(filename); err != nil {
		return false, err
	}
	return v.sandbox.Exists(filename)
}

// Delete removes a video by filename.
func (v *VideoStore) Delete(filename string) error {
	if err := validateFilename(filename); err != nil {
		return err
	}
	return v.sandbox.Remove(filename)
}

// List returns all videos in the output directory, newest first.
func (v *VideoStore) List() ([]VideoInfo, error) {
	entries, err := v.sandbox.List(".")
	if err != nil {
		return nil, err
	}

	videos := make([]VideoInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !videoExtensions[filepath.Ext(entry.Name())] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		videos = append(videos, VideoInfo{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(videos, func(i, j int) bool {
		return videos[i].ModTime.After(videos[j].ModTime)
	})
	return videos, nil
}

// PruneOlderThan removes videos last modified before the cutoff and
// returns how many were removed.
func (v *VideoStore) PruneOlderThan(cutoff time.Time) (int, error) {
	videos, err := v.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, video := range videos {
		if !video.ModTime.Before(cutoff) {
			continue
		}
		if err := v.sandbox.Remove(video.Name); err != nil {
			return removed, fmt.Errorf("pruning %s: %w", video.Name, err)
		}
		removed++
	}
	return removed, nil
}

// validateFilename rejects names that are not plain video filenames.
func validateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("empty filename")
	}
	if strings.ContainsAny(filename, `/\`) || filename != filepath.Base(filename) {
		return fmt.Errorf("invalid filename: %s", filename)
	}
	if !videoExtensions[filepath.Ext(filename)] {
		return fmt.Errorf("unsupported file type: %s", filename)
	}
	return nil
}
