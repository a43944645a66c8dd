// Package concat joins profile-matched MP4 segments with the concat demuxer.
package concat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipstitch/clipstitch/internal/ffmpeg"
)

// DefaultIncrementalAbove is the input count beyond which pairwise folding
// replaces a single manifest run, keeping command lines and demuxer state
// small for long sentences.
const DefaultIncrementalAbove = 50

// Result describes a finished concatenation.
type Result struct {
	Output   string
	Duration float64 // seconds, from ffprobe
	Inputs   int
}

// Concatenator stream-copy joins segments already encoded to one profile.
type Concatenator struct {
	bin    *ffmpeg.BinaryInfo
	prober *ffmpeg.Prober
	logger *slog.Logger

	// IncrementalAbove overrides the folding threshold when > 0.
	IncrementalAbove int
}

// New creates a Concatenator using already-detected binaries.
func New(bin *ffmpeg.BinaryInfo, logger *slog.Logger) *Concatenator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Concatenator{
		bin:    bin,
		prober: ffmpeg.NewProber(bin.FFprobePath),
		logger: logger.With(slog.String("component", "concat")),
	}
}

// Concatenate joins files in order into output. Every input is validated
// with ffprobe first; any invalid segment fails the whole run.
func (c *Concatenator) Concatenate(ctx context.Context, files []string, output string) (*Result, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("concat: no input files")
	}

	for _, f := range files {
		if _, err := c.prober.VerifySegment(ctx, f); err != nil {
			return nil, fmt.Errorf("validating segment: %w", err)
		}
	}

	threshold := c.IncrementalAbove
	if threshold <= 0 {
		threshold = DefaultIncrementalAbove
	}

	var err error
	switch {
	case len(files) == 1:
		err = copyFile(files[0], output)
	case len(files) > threshold:
		err = c.concatIncremental(ctx, files, output)
	default:
		err = c.concatBatch(ctx, files, output)
	}
	if err != nil {
		return nil, err
	}

	probe, err := c.prober.Probe(ctx, output)
	if err != nil {
		return nil, fmt.Errorf("probing concat output: %w", err)
	}

	c.logger.Debug("concatenation finished",
		slog.Int("inputs", len(files)),
		slog.String("output", output),
		slog.Float64("duration", probe.Duration()),
	)

	return &Result{
		Output:   output,
		Duration: probe.Duration(),
		Inputs:   len(files),
	}, nil
}

// concatBatch writes a demuxer manifest and joins all inputs in one run.
func (c *Concatenator) concatBatch(ctx context.Context, files []string, output string) error {
	manifest, err := writeManifest(files, filepath.Dir(output))
	if err != nil {
		return err
	}
	defer os.Remove(manifest)

	cmd := ffmpeg.NewCommandBuilder(c.bin.FFmpegPath).
		HideBanner().
		Overwrite().
		InputFormat("concat").
		InputArgs("-safe", "0").
		Input(manifest).
		OutputArgs("-c", "copy").
		FastStart().
		Output(output).
		Build()

	return cmd.Run(ctx)
}

// concatIncremental folds inputs left to right two at a time.
func (c *Concatenator) concatIncremental(ctx context.Context, files []string, output string) error {
	workDir := filepath.Dir(output)

	acc := files[0]
	accIsTemp := false

	for i := 1; i < len(files); i++ {
		var step string
		if i == len(files)-1 {
			step = output
		} else {
			step = filepath.Join(workDir, fmt.Sprintf("fold-%04d.mp4", i))
		}

		if err := c.concatBatch(ctx, []string{acc, files[i]}, step); err != nil {
			if accIsTemp {
				os.Remove(acc)
			}
			return fmt.Errorf("incremental step %d: %w", i, err)
		}

		if accIsTemp {
			os.Remove(acc)
		}
		acc = step
		accIsTemp = step != output
	}

	return nil
}

// writeManifest writes a concat demuxer file list with quoted paths.
func writeManifest(files []string, dir string) (string, error) {
	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("creating concat manifest: %w", err)
	}

	var sb strings.Builder
	for _, path := range files {
		abs, err := filepath.Abs(path)
		if err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", err
		}
		fmt.Fprintf(&sb, "file '%s'\n", escapeManifestPath(abs))
	}

	if _, err := f.WriteString(sb.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing concat manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// escapeManifestPath escapes single quotes for the concat demuxer, which
// reads 'it''s.mp4' style quoting.
func escapeManifestPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// copyFile copies a single validated segment to the output path.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading segment: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
