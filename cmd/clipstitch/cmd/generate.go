package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipstitch/clipstitch/internal/catalog"
	"github.com/clipstitch/clipstitch/internal/config"
	"github.com/clipstitch/clipstitch/internal/database"
	"github.com/clipstitch/clipstitch/internal/ffmpeg"
	"github.com/clipstitch/clipstitch/internal/observability"
	"github.com/clipstitch/clipstitch/internal/pipeline"
	"github.com/clipstitch/clipstitch/internal/startup"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Compose a video from a sentence without starting the server",
	Long: `Compose a single video from a sentence and exit.

The sentence is matched against the clip catalog, the source segments are
downloaded and re-encoded, and the result is written to the output
directory (or the path given with --output).

Exit codes: 0 on success (including partial results with placeholder
cards), 1 on a fatal pipeline failure, 2 on bad arguments.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	// Note: flags shared with serve (database, output-dir, temp-dir) are NOT
	// bound to viper here; binding the same key from two commands would let
	// the non-executed command's default win. They are applied with
	// Changed() checks instead.
	generateCmd.Flags().String("text", "", "Sentence to compose (required)")
	generateCmd.Flags().String("database", "", "Clip catalog DSN (sqlite file path)")
	generateCmd.Flags().String("output", "", "Write the final video to this path")
	generateCmd.Flags().String("output-dir", "", "Directory for generated videos")
	generateCmd.Flags().String("temp-dir", "", "Directory for job scratch space")
	generateCmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	generateCmd.Flags().Bool("no-normalize", false, "Skip loudness normalization")
	generateCmd.Flags().Bool("no-cleanup", false, "Keep the job scratch directory")
	generateCmd.Flags().Bool("enhance-audio", false, "Run the result through Auphonic")
	generateCmd.Flags().Int("max-phrase-length", 0, "Longest phrase to probe in the catalog")
	generateCmd.Flags().Float64("padding-start", 0, "Seconds of padding before each clip")
	generateCmd.Flags().Float64("padding-end", 0, "Seconds of padding after each clip")
	generateCmd.Flags().Int("max-download-workers", 0, "Concurrent segment downloads")
	generateCmd.Flags().Int("max-processing-workers", 0, "Concurrent segment encodes")
	generateCmd.Flags().String("aspect-ratio", "", "Output aspect ratio (16:9, 9:16, 1:1)")
	generateCmd.Flags().Bool("subtitles", false, "Overlay the spoken text on each clip")
	generateCmd.Flags().String("watermark", "", "Watermark text overlay")
	generateCmd.Flags().String("intro", "", "Intro title card text")
	generateCmd.Flags().String("outro", "", "Outro title card text")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyGenerateOverrides(cfg, cmd)

	if verbose, _ := flags.GetBool("verbose"); verbose && !rootCmd.PersistentFlags().Changed("log-level") {
		logCfg := cfg.Logging
		logCfg.Level = "debug"
		observability.SetDefault(observability.NewLoggerWithWriter(logCfg, os.Stderr))
	}
	logger := slog.Default()

	req, err := buildGenerateRequest(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig := <-sigChan
		logger.Info("received signal, cancelling job", slog.String("signal", sig.String()))
		cancel()
	}()

	if removed, err := startup.CleanupOrphanedJobDirs(logger, cfg.Storage.TempDir, startup.DefaultMaxAge); err == nil && removed > 0 {
		logger.Info("cleaned orphaned scratch directories", slog.Int("removed_count", removed))
	}

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer db.Close()

	cat := catalog.New(db, cfg.Catalog, logger)

	detector := ffmpeg.NewBinaryDetector().
		WithPaths(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	bin, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting ffmpeg: %w", err)
	}
	if cfg.FFmpeg.VerifyOnInit {
		if err := bin.VerifyEncoders(); err != nil {
			return fmt.Errorf("verifying encoders: %w", err)
		}
	}

	runner, err := buildRunner(cfg, cat, bin, logger)
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx, req)
	if err != nil {
		if errors.Is(err, pipeline.ErrBadRequest) || errors.Is(err, pipeline.ErrMissingWords) {
			return fmt.Errorf("%w: %v", ErrBadArguments, err)
		}
		return err
	}

	outputPath := result.OutputPath
	if dest, _ := flags.GetString("output"); dest != "" {
		if err := moveFile(result.OutputPath, dest); err != nil {
			return fmt.Errorf("moving output: %w", err)
		}
		outputPath = dest
	}

	printGenerateResult(cmd.OutOrStdout(), result, outputPath)
	return nil
}

// applyGenerateOverrides layers explicitly-set generate flags over the
// loaded configuration.
func applyGenerateOverrides(cfg *config.Config, cmd *cobra.Command) {
	flags := cmd.Flags()

	if flags.Changed("database") {
		cfg.Database.DSN, _ = flags.GetString("database")
	}
	if flags.Changed("output-dir") {
		cfg.Storage.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("temp-dir") {
		cfg.Storage.TempDir, _ = flags.GetString("temp-dir")
	}
	if noNormalize, _ := flags.GetBool("no-normalize"); noNormalize {
		cfg.Encoding.NormalizeLoudness = false
	}
	if noCleanup, _ := flags.GetBool("no-cleanup"); noCleanup {
		cfg.Pipeline.KeepTemp = true
	}
}

func buildGenerateRequest(cmd *cobra.Command) (pipeline.Request, error) {
	flags := cmd.Flags()

	text, _ := flags.GetString("text")
	if strings.TrimSpace(text) == "" {
		return pipeline.Request{}, fmt.Errorf("%w: --text must not be empty", ErrBadArguments)
	}

	req := pipeline.Request{Sentence: text}
	req.Subtitles, _ = flags.GetBool("subtitles")
	req.Enhance, _ = flags.GetBool("enhance-audio")
	req.Watermark, _ = flags.GetString("watermark")
	req.IntroText, _ = flags.GetString("intro")
	req.OutroText, _ = flags.GetString("outro")
	req.MaxPhraseLen, _ = flags.GetInt("max-phrase-length")
	req.DownloadWorkers, _ = flags.GetInt("max-download-workers")
	req.ProcessingWorkers, _ = flags.GetInt("max-processing-workers")

	if ratio, _ := flags.GetString("aspect-ratio"); ratio != "" {
		switch ratio {
		case "16:9", "9:16", "1:1":
			req.AspectRatio = ratio
		default:
			return pipeline.Request{}, fmt.Errorf("%w: unsupported aspect ratio %q", ErrBadArguments, ratio)
		}
	}

	if flags.Changed("padding-start") {
		pad, _ := flags.GetFloat64("padding-start")
		if pad < 0 {
			return pipeline.Request{}, fmt.Errorf("%w: --padding-start must not be negative", ErrBadArguments)
		}
		req.PaddingStart = &pad
	}
	if flags.Changed("padding-end") {
		pad, _ := flags.GetFloat64("padding-end")
		if pad < 0 {
			return pipeline.Request{}, fmt.Errorf("%w: --padding-end must not be negative", ErrBadArguments)
		}
		req.PaddingEnd = &pad
	}

	return req, nil
}

func printGenerateResult(w io.Writer, result *pipeline.Result, outputPath string) {
	fmt.Fprintf(w, "status: %s\n", result.Status)
	fmt.Fprintf(w, "output: %s\n", outputPath)
	fmt.Fprintf(w, "duration: %.2fs\n", result.Duration)
	if result.OriginalPath != "" {
		fmt.Fprintf(w, "original: %s\n", result.OriginalPath)
	}
	if len(result.MissingWords) > 0 {
		fmt.Fprintf(w, "missing words: %s\n", strings.Join(result.MissingWords, ", "))
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

// moveFile renames src to dest, falling back to a copy when they live on
// different filesystems.
func moveFile(src, dest string) error {
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
