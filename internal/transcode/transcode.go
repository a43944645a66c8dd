// Package transcode encodes clip segments and rendered cards to the fixed
// intermediate profile so concatenation can stream-copy.
package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clipstitch/clipstitch/internal/config"
	"github.com/clipstitch/clipstitch/internal/ffmpeg"
)

// Intermediate profile. Every clip and card is encoded identically; the
// concat demuxer then stream-copies without renegotiating parameters.
const (
	videoCodec    = "libx264"
	videoProfile  = "high"
	videoLevel    = "3.1"
	videoPreset   = "veryfast"
	pixelFormat   = "yuv420p"
	frameRate     = 30
	gopSize       = 30
	audioCodec    = "aac"
	audioBitrate  = "128k"
	audioRate     = 48000
	audioChannels = 2

	loudnormFilter = "loudnorm=I=-16:TP=-1.5:LRA=11"

	defaultTimeout = 120 * time.Second
)

// Options controls a single clip transcode.
type Options struct {
	// Subtitle overlays the spoken text near the bottom when non-empty.
	Subtitle string
	// Watermark overlays attribution text in the top-right when non-empty.
	Watermark string
	// AspectRatio overrides the configured aspect ratio when non-empty.
	AspectRatio string
}

// Transcoder renders catalog segments and text cards to the profile.
type Transcoder struct {
	bin    *ffmpeg.BinaryInfo
	cfg    config.EncodingConfig
	logger *slog.Logger
}

// New creates a Transcoder using already-detected binaries.
func New(bin *ffmpeg.BinaryInfo, cfg config.EncodingConfig, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcoder{
		bin:    bin,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "transcode")),
	}
}

// Resolution returns the output width and height for an aspect ratio string.
func Resolution(aspectRatio string) (int, int, error) {
	switch aspectRatio {
	case "16:9", "":
		return 1280, 720, nil
	case "9:16":
		return 720, 1280, nil
	case "1:1":
		return 720, 720, nil
	default:
		return 0, 0, fmt.Errorf("unsupported aspect ratio %q", aspectRatio)
	}
}

// Transcode encodes input to output at the fixed profile. The input is
// already cut to the clip window at download time, so no trim happens here.
func (t *Transcoder) Transcode(ctx context.Context, input, output string, opts Options) error {
	cmd, err := t.buildTranscodeCommand(input, output, opts)
	if err != nil {
		return err
	}
	return t.runEncode(ctx, cmd, output)
}

// RenderCard renders a solid card with centered text and silent audio.
// Used for placeholder words and intro/outro titles. Only AspectRatio
// is consulted from opts.
func (t *Transcoder) RenderCard(ctx context.Context, text string, duration time.Duration, output string, opts Options) error {
	cmd, err := t.buildCardCommand(text, duration, output, opts)
	if err != nil {
		return err
	}
	return t.runEncode(ctx, cmd, output)
}

// resolution picks the per-request aspect ratio over the configured one.
func (t *Transcoder) resolution(opts Options) (int, int, error) {
	aspect := t.cfg.AspectRatio
	if opts.AspectRatio != "" {
		aspect = opts.AspectRatio
	}
	return Resolution(aspect)
}

// CardDuration returns the configured placeholder card length.
func (t *Transcoder) CardDuration() time.Duration {
	if t.cfg.CardDuration > 0 {
		return t.cfg.CardDuration
	}
	return time.Second
}

// TitleDuration returns the configured intro/outro card length.
func (t *Transcoder) TitleDuration() time.Duration {
	if t.cfg.TitleDuration > 0 {
		return t.cfg.TitleDuration
	}
	return 2 * time.Second
}

func (t *Transcoder) runEncode(ctx context.Context, cmd *ffmpeg.Command, output string) error {
	timeout := t.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	if err := cmd.Run(ctx); err != nil {
		return err
	}
	t.logger.Debug("encode finished",
		slog.String("output", output),
		slog.Duration("took", time.Since(started)),
	)
	return nil
}

func (t *Transcoder) buildTranscodeCommand(input, output string, opts Options) (*ffmpeg.Command, error) {
	width, height, err := t.resolution(opts)
	if err != nil {
		return nil, err
	}

	b := ffmpeg.NewCommandBuilder(t.bin.FFmpegPath).
		HideBanner().
		Overwrite()

	b.Input(input)

	// Scale to cover the frame, then center-crop.
	b.VideoFilter(fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", width, height))
	b.VideoFilter(fmt.Sprintf("crop=%d:%d", width, height))

	if opts.Subtitle != "" {
		b.VideoFilter(subtitleFilter(opts.Subtitle))
	}
	if opts.Watermark != "" {
		b.VideoFilter(watermarkFilter(opts.Watermark))
	}

	t.applyProfile(b)
	b.Output(output)

	return b.Build(), nil
}

func (t *Transcoder) buildCardCommand(text string, duration time.Duration, output string, opts Options) (*ffmpeg.Command, error) {
	width, height, err := t.resolution(opts)
	if err != nil {
		return nil, err
	}

	secs := duration.Seconds()
	if secs <= 0 {
		secs = t.CardDuration().Seconds()
	}

	b := ffmpeg.NewCommandBuilder(t.bin.FFmpegPath).
		HideBanner().
		Overwrite().
		InputFormat("lavfi").
		Input(fmt.Sprintf("color=c=black:s=%dx%d:d=%s:r=%d", width, height, trimFloat(secs), frameRate)).
		InputFormat("lavfi").
		Input(fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", audioRate)).
		VideoFilter(cardTextFilter(text)).
		Shortest()

	t.applyProfile(b)
	b.Output(output)

	return b.Build(), nil
}

// applyProfile appends the fixed output profile to a builder.
func (t *Transcoder) applyProfile(b *ffmpeg.CommandBuilder) {
	b.VideoCodec(videoCodec).
		VideoProfile(videoProfile).
		VideoLevel(videoLevel).
		VideoPreset(videoPreset).
		PixelFormat(pixelFormat).
		FrameRate(frameRate).
		KeyframeInterval(gopSize).
		AudioCodec(audioCodec).
		AudioBitrate(audioBitrate).
		AudioSampleRate(audioRate).
		AudioChannels(audioChannels)

	if t.cfg.NormalizeLoudness {
		b.AudioFilter(loudnormFilter)
	}

	b.FastStart()
}

func subtitleFilter(text string) string {
	return fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white:fontsize=48:borderw=2:bordercolor=black:x=(w-text_w)/2:y=h-text_h-40",
		escapeDrawtext(text),
	)
}

func watermarkFilter(text string) string {
	return fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white@0.6:fontsize=24:x=w-text_w-20:y=20",
		escapeDrawtext(text),
	)
}

func cardTextFilter(text string) string {
	return fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white:fontsize=64:x=(w-text_w)/2:y=(h-text_h)/2",
		escapeDrawtext(text),
	)
}

// escapeDrawtext escapes the characters the drawtext filter treats
// specially inside a quoted text value.
func escapeDrawtext(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
