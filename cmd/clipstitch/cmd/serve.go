package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipstitch/clipstitch/internal/catalog"
	"github.com/clipstitch/clipstitch/internal/concat"
	"github.com/clipstitch/clipstitch/internal/config"
	"github.com/clipstitch/clipstitch/internal/database"
	"github.com/clipstitch/clipstitch/internal/enhance"
	"github.com/clipstitch/clipstitch/internal/fetch"
	"github.com/clipstitch/clipstitch/internal/ffmpeg"
	internalhttp "github.com/clipstitch/clipstitch/internal/http"
	"github.com/clipstitch/clipstitch/internal/http/handlers"
	"github.com/clipstitch/clipstitch/internal/pipeline"
	"github.com/clipstitch/clipstitch/internal/planner"
	"github.com/clipstitch/clipstitch/internal/startup"
	"github.com/clipstitch/clipstitch/internal/storage"
	"github.com/clipstitch/clipstitch/internal/transcode"
	"github.com/clipstitch/clipstitch/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the clipstitch server",
	Long: `Start the clipstitch HTTP server and API.

The server provides:
- POST /generate-video to compose a video from a sentence
- GET /videos/{filename} to download generated videos
- Health check endpoint at /health`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "clips.db", "Clip catalog DSN (sqlite file path)")
	serveCmd.Flags().String("output-dir", "./output", "Directory for generated videos")
	serveCmd.Flags().String("temp-dir", "./temp", "Directory for job scratch space")

	// Bind flags to viper
	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("storage.output_dir", serveCmd.Flags().Lookup("output-dir"))
	mustBindPFlag("storage.temp_dir", serveCmd.Flags().Lookup("temp-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	// Clean up scratch directories left behind by a previous run
	orphansRemoved, err := startup.CleanupOrphanedJobDirs(logger, cfg.Storage.TempDir, startup.DefaultMaxAge)
	if err != nil {
		logger.Warn("failed to clean orphaned scratch directories",
			slog.String("error", err.Error()),
		)
	} else if orphansRemoved > 0 {
		logger.Info("cleaned orphaned scratch directories on startup",
			slog.Int("removed_count", orphansRemoved),
		)
	}

	// Open the clip catalog
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer db.Close()

	cat := catalog.New(db, cfg.Catalog, logger)

	// Detect ffmpeg/ffprobe before accepting work
	detector := ffmpeg.NewBinaryDetector().
		WithPaths(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	bin, err := detector.Detect(cmd.Context())
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

	// Output store and retention sweep
	store, err := storage.NewVideoStore(cfg.Storage.OutputDir)
	if err != nil {
		return fmt.Errorf("initializing video store: %w", err)
	}

	sweeper := storage.NewRetentionSweeper(store, cfg.Storage.Retention.Duration(), cfg.Storage.RetentionCron, logger)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	// Initialize HTTP server
	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	healthHandler := handlers.NewHealthHandler(version.Version).WithDB(db.DB).WithStats(cat)
	healthHandler.Register(server.API())

	generateHandler := handlers.NewGenerateHandler(runner, logger)
	generateHandler.Register(server.API())

	// Transcript search has no provider yet; the route answers 501.
	searchHandler := handlers.NewSearchHandler(nil)
	searchHandler.Register(server.API())

	// Video downloads bypass huma so large files stream instead of buffering
	videosHandler := handlers.NewVideosHandler(store, logger)
	videosHandler.Register(server.Router())

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting clipstitch server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

// buildRunner wires the planning, download, encode, concat, and enhance
// stages into a job runner.
func buildRunner(cfg *config.Config, cat *catalog.Catalog, bin *ffmpeg.BinaryInfo, logger *slog.Logger) (*pipeline.Runner, error) {
	fetcher, err := fetch.New(cfg.Downloader, cfg.Storage.TempDir, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing fetcher: %w", err)
	}

	transcoder := transcode.New(bin, cfg.Encoding, logger)

	cc := concat.New(bin, logger)
	cc.IncrementalAbove = cfg.Pipeline.IncrementalAbove
	concatFn := pipeline.ConcatFunc(func(ctx context.Context, files []string, output string) (float64, error) {
		result, err := cc.Concatenate(ctx, files, output)
		if err != nil {
			return 0, err
		}
		return result.Duration, nil
	})

	enhancer := enhance.New(cfg.Enhance, bin, logger)
	prober := pipeline.FFprobeDurations{Prober: ffmpeg.NewProber(bin.FFprobePath)}

	pl := planner.New(cat, logger)

	runner := pipeline.New(
		pl,
		fetcher,
		transcoder,
		concatFn,
		enhancer,
		prober,
		cfg.Pipeline,
		cfg.Storage.OutputDir,
		cfg.Storage.TempDir,
		logger,
	)
	runner.DefaultMaxPhraseLen = cfg.Catalog.MaxPhraseLength
	return runner, nil
}
