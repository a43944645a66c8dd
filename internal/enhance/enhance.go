// Package enhance runs finished videos through the Auphonic audio cleanup
// round-trip: extract audio, process remotely, mux the result back.
package enhance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipstitch/clipstitch/internal/config"
	"github.com/clipstitch/clipstitch/internal/ffmpeg"
	"github.com/clipstitch/clipstitch/internal/version"
	"github.com/clipstitch/clipstitch/pkg/httpclient"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPollBudget   = 10 * time.Minute
)

// Options adjusts a single enhancement run.
type Options struct {
	// KeepOriginal overrides the configured setting when non-nil.
	KeepOriginal *bool
	// Progress receives status updates; may be nil.
	Progress func(status string)
}

// Enhancer coordinates the Auphonic round-trip. Failures are reported to
// the caller as errors but the original video is always left playable.
type Enhancer struct {
	cfg    config.EnhanceConfig
	bin    *ffmpeg.BinaryInfo
	api    *apiClient
	logger *slog.Logger

	// runCmd executes an ffmpeg command; replaced in tests.
	runCmd func(ctx context.Context, cmd *ffmpeg.Command) error
}

// New creates an Enhancer. When no API token is configured Enhance becomes
// a no-op and Enabled reports false.
func New(cfg config.EnhanceConfig, bin *ffmpeg.BinaryInfo, logger *slog.Logger) *Enhancer {
	if logger == nil {
		logger = slog.Default()
	}

	client := httpclient.New(httpclient.Config{
		Timeout:             5 * time.Minute,
		RetryAttempts:       httpclient.DefaultRetryAttempts,
		RetryDelay:          httpclient.DefaultRetryDelay,
		RetryMaxDelay:       httpclient.DefaultRetryMaxDelay,
		UserAgent:           version.UserAgent(),
		Logger:              logger,
		EnableDecompression: true,
		MaxResponseSize:     int64(cfg.MaxUploadSize),
	})

	return &Enhancer{
		cfg:    cfg,
		bin:    bin,
		api:    newAPIClient(strings.TrimRight(cfg.BaseURL, "/"), cfg.APIToken, client),
		logger: logger.With(slog.String("component", "enhance")),
		runCmd: func(ctx context.Context, cmd *ffmpeg.Command) error { return cmd.Run(ctx) },
	}
}

// Enabled reports whether an API token is configured.
func (e *Enhancer) Enabled() bool {
	return e.cfg.Enabled()
}

// Enhance replaces the audio track of videoPath with the Auphonic-processed
// version, in place. workDir holds intermediates.
func (e *Enhancer) Enhance(ctx context.Context, videoPath, workDir string, opts Options) error {
	if !e.Enabled() {
		return nil
	}
	notify := func(s string) {
		if opts.Progress != nil {
			opts.Progress(s)
		}
	}

	audioPath := filepath.Join(workDir, "enhance-input.mp3")
	if err := e.extractAudio(ctx, videoPath, audioPath); err != nil {
		return fmt.Errorf("extracting audio: %w", err)
	}
	defer os.Remove(audioPath)

	if max := int64(e.cfg.MaxUploadSize); max > 0 {
		info, err := os.Stat(audioPath)
		if err != nil {
			return err
		}
		if info.Size() > max {
			return fmt.Errorf("audio track is %d bytes, over the %d byte upload limit", info.Size(), max)
		}
	}

	notify("uploading")
	uuid, err := e.api.createProduction(ctx, strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath)))
	if err != nil {
		return err
	}
	log := e.logger.With(slog.String("production", uuid))

	if err := e.api.upload(ctx, uuid, audioPath); err != nil {
		return err
	}
	if err := e.api.start(ctx, uuid); err != nil {
		return err
	}

	notify("processing")
	prod, err := e.poll(ctx, uuid, notify)
	if err != nil {
		return err
	}
	if len(prod.OutputFiles) == 0 || prod.OutputFiles[0].DownloadURL == "" {
		return fmt.Errorf("production %s finished without output files", uuid)
	}

	notify("downloading")
	enhancedAudio := filepath.Join(workDir, "enhance-output.mp3")
	if err := e.api.download(ctx, prod.OutputFiles[0].DownloadURL, enhancedAudio); err != nil {
		return err
	}
	defer os.Remove(enhancedAudio)

	muxed := filepath.Join(workDir, "enhanced"+filepath.Ext(videoPath))
	if err := e.muxAudio(ctx, videoPath, enhancedAudio, muxed); err != nil {
		return fmt.Errorf("muxing enhanced audio: %w", err)
	}

	keepOriginal := e.cfg.KeepOriginal
	if opts.KeepOriginal != nil {
		keepOriginal = *opts.KeepOriginal
	}
	if keepOriginal {
		ext := filepath.Ext(videoPath)
		original := strings.TrimSuffix(videoPath, ext) + "_original" + ext
		if err := os.Rename(videoPath, original); err != nil {
			os.Remove(muxed)
			return fmt.Errorf("preserving original: %w", err)
		}
	}
	if err := os.Rename(muxed, videoPath); err != nil {
		return fmt.Errorf("replacing video: %w", err)
	}

	log.Info("audio enhancement finished", slog.String("video", videoPath))
	return nil
}

// poll waits for the production to reach Done, within the poll budget.
func (e *Enhancer) poll(ctx context.Context, uuid string, notify func(string)) (*production, error) {
	interval := e.cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	budget := e.cfg.PollBudget
	if budget <= 0 {
		budget = defaultPollBudget
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		prod, err := e.api.status(ctx, uuid)
		if err == nil {
			switch prod.StatusString {
			case statusDone:
				return prod, nil
			case statusError:
				return nil, fmt.Errorf("production %s failed: %s", uuid, prod.ErrorMessage)
			default:
				notify(prod.StatusString)
			}
		} else {
			// Transient status errors ride out the budget.
			e.logger.Warn("status poll failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("enhancement timed out after %s", budget)
		case <-ticker.C:
		}
	}
}

// extractAudio pulls the audio track as mp3 192k for upload.
func (e *Enhancer) extractAudio(ctx context.Context, videoPath, audioPath string) error {
	cmd := ffmpeg.NewCommandBuilder(e.bin.FFmpegPath).
		HideBanner().
		Overwrite().
		Input(videoPath).
		NoVideo().
		AudioCodec("libmp3lame").
		AudioBitrate("192k").
		Output(audioPath).
		Build()
	return e.runCmd(ctx, cmd)
}

// muxAudio replaces the audio track, stream-copying video.
func (e *Enhancer) muxAudio(ctx context.Context, videoPath, audioPath, output string) error {
	cmd := ffmpeg.NewCommandBuilder(e.bin.FFmpegPath).
		HideBanner().
		Overwrite().
		Input(videoPath).
		Input(audioPath).
		Map("0:v:0").
		Map("1:a:0").
		OutputArgs("-c:v", "copy").
		AudioCodec("aac").
		AudioBitrate("128k").
		AudioSampleRate(48000).
		AudioChannels(2).
		Shortest().
		FastStart().
		Output(output).
		Build()
	return e.runCmd(ctx, cmd)
}
