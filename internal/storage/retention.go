package storage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRetentionCron runs the sweep daily at 03:00, matching the
// storage.retention_cron config default.
const DefaultRetentionCron = "0 0 3 * * *"

// RetentionSweeper deletes generated videos older than the retention
// window on a cron schedule. A zero retention disables the sweeper.
type RetentionSweeper struct {
	store     *VideoStore
	retention time.Duration
	schedule  string
	logger    *slog.Logger

	cron *cron.Cron
	now  func() time.Time
}

// NewRetentionSweeper creates a sweeper. schedule is a 6-field cron
// expression with seconds; empty uses DefaultRetentionCron.
func NewRetentionSweeper(store *VideoStore, retention time.Duration, schedule string, logger *slog.Logger) *RetentionSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = DefaultRetentionCron
	}
	return &RetentionSweeper{
		store:     store,
		retention: retention,
		schedule:  schedule,
		logger:    logger.With(slog.String("component", "retention")),
		now:       time.Now,
	}
}

// Start registers the cron entry and begins sweeping. No-op when
// retention is disabled.
func (r *RetentionSweeper) Start() error {
	if r.retention <= 0 {
		r.logger.Debug("retention disabled, sweeper not started")
		return nil
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	r.cron = cron.New(cron.WithParser(parser))
	if _, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.Sweep(); err != nil {
			r.logger.Error("retention sweep failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()

	r.logger.Info("retention sweeper started",
		slog.Duration("retention", r.retention),
		slog.String("schedule", r.schedule))
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (r *RetentionSweeper) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.logger.Info("retention sweeper stopped")
}

// Sweep removes videos older than the retention window once.
func (r *RetentionSweeper) Sweep() (int, error) {
	cutoff := r.now().Add(-r.retention)
	removed, err := r.store.PruneOlderThan(cutoff)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		r.logger.Info("retention sweep removed videos", slog.Int("count", removed))
	}
	return removed, nil
}
