// Package fetch downloads clip segments from YouTube via yt-dlp.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clipstitch/clipstitch/internal/config"
	"github.com/clipstitch/clipstitch/internal/util"
)

// ErrPermanent marks failures that retrying cannot fix: removed, private,
// or region-locked videos. Callers should skip the segment.
var ErrPermanent = errors.New("permanent download failure")

// ValidBrowsers are the browsers yt-dlp can extract cookies from.
var ValidBrowsers = []string{"chrome", "firefox", "safari", "edge", "chromium", "opera", "brave"}

// Request identifies a segment to download. Start and End are unpadded
// seconds within the video; padding from config is applied on fetch
// unless the request carries its own.
type Request struct {
	VideoID string
	Start   float64
	End     float64
	// PaddingStart and PaddingEnd override the configured padding when
	// non-nil.
	PaddingStart *float64
	PaddingEnd   *float64
}

// runFunc executes yt-dlp and returns combined stderr output.
type runFunc func(ctx context.Context, binary string, args []string) (string, error)

// Fetcher downloads segments with retry, caching, and deduplication.
type Fetcher struct {
	cfg      config.DownloaderConfig
	binary   string
	cacheDir string
	logger   *slog.Logger
	run      runFunc

	// Per-key locks so concurrent jobs never download the same segment twice.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Fetcher. The yt-dlp binary is located at construction so a
// missing install fails fast.
func New(cfg config.DownloaderConfig, tempDir string, logger *slog.Logger) (*Fetcher, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		var err error
		binary, err = util.FindBinary("yt-dlp", "CLIPSTITCH_YTDLP_BINARY")
		if err != nil {
			return nil, fmt.Errorf("yt-dlp not found: %w", err)
		}
	}

	cacheDir := cfg.CachePath(tempDir)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating segment cache dir: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		cfg:      cfg,
		binary:   binary,
		cacheDir: cacheDir,
		logger:   logger.With(slog.String("component", "fetch")),
		run:      runYtdlp,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// CacheDir returns the segment cache directory.
func (f *Fetcher) CacheDir() string {
	return f.cacheDir
}

// Fetch downloads the padded segment and returns the cached file path.
// Cached segments are reused across jobs.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (string, error) {
	padStart := f.cfg.PaddingStart
	if req.PaddingStart != nil {
		padStart = *req.PaddingStart
	}
	padEnd := f.cfg.PaddingEnd
	if req.PaddingEnd != nil {
		padEnd = *req.PaddingEnd
	}

	start := req.Start - padStart
	if start < 0 {
		start = 0
	}
	end := req.End + padEnd

	path := f.cachePath(req.VideoID, start, end)

	lock := f.keyLock(path)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(path); err == nil {
		f.logger.Debug("segment cache hit", slog.String("path", path))
		return path, nil
	}

	if err := f.download(ctx, req.VideoID, start, end, path); err != nil {
		return "", err
	}
	return path, nil
}

// keyLock returns the mutex guarding one cache key.
func (f *Fetcher) keyLock(key string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()

	lock, ok := f.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		f.locks[key] = lock
	}
	return lock
}

func (f *Fetcher) cachePath(videoID string, start, end float64) string {
	name := fmt.Sprintf("%s_%s_%s.mp4", videoID, formatSeconds(start), formatSeconds(end))
	return filepath.Join(f.cacheDir, name)
}

// download runs yt-dlp with retry and exponential backoff. Transient
// failures retry; permanent ones abort with ErrPermanent.
func (f *Fetcher) download(ctx context.Context, videoID string, start, end float64, dest string) error {
	log := f.logger.With(
		slog.String("video_id", videoID),
		slog.String("section", fmt.Sprintf("%s-%s", formatSeconds(start), formatSeconds(end))),
	)

	attempts := f.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := f.cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	// Download to a partial file, rename into the cache on success.
	partial := dest + ".part"
	args := f.buildArgs(videoID, start, end, partial)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if f.cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		}

		started := time.Now()
		stderr, err := f.run(attemptCtx, f.binary, args)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if renameErr := os.Rename(partial, dest); renameErr != nil {
				return fmt.Errorf("moving segment into cache: %w", renameErr)
			}
			log.Debug("segment downloaded",
				slog.Int("attempt", attempt),
				slog.Duration("took", time.Since(started)),
			)
			return nil
		}

		os.Remove(partial)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if isPermanentFailure(stderr) {
			log.Warn("segment permanently unavailable", slog.String("stderr", lastLine(stderr)))
			return fmt.Errorf("%w: %s: %s", ErrPermanent, videoID, lastLine(stderr))
		}

		lastErr = fmt.Errorf("yt-dlp: %w: %s", err, lastLine(stderr))
		if attempt < attempts {
			log.Warn("segment download failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.String("error", lastLine(stderr)),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("download failed after %d attempts: %w", attempts, lastErr)
}

func (f *Fetcher) buildArgs(videoID string, start, end float64, dest string) []string {
	args := []string{
		"--quiet", "--no-warnings",
		"--no-playlist",
		"-f", "bestvideo[height<=720]+bestaudio/best[height<=720]",
		"--download-sections", fmt.Sprintf("*%s-%s", formatSeconds(start), formatSeconds(end)),
		"--force-keyframes-at-cuts",
		"--merge-output-format", "mp4",
	}

	switch {
	case f.cfg.CookiesFromBrowser != "":
		args = append(args, "--cookies-from-browser", f.cfg.CookiesFromBrowser)
	case f.cfg.CookieFile != "":
		args = append(args, "--cookies", f.cfg.CookieFile)
	}

	args = append(args,
		"-o", dest,
		"https://www.youtube.com/watch?v="+videoID,
	)
	return args
}

// runYtdlp executes yt-dlp capturing stderr for failure classification.
func runYtdlp(ctx context.Context, binary string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// permanentMarkers are stderr fragments that identify unrecoverable
// failures; retrying only burns quota.
var permanentMarkers = []string{
	"video unavailable",
	"private video",
	"has been removed",
	"account associated with this video has been terminated",
	"not available in your country",
	"video is not available",
	"sign in to confirm your age",
	"http error 403",
	"http error 404",
	"http error 410",
}

func isPermanentFailure(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range permanentMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// lastLine returns the final non-empty line of command output.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 2, 64)
}
