package core

// scheduler.go runs the incremental update on a fixed interval so new
// source years are published without an operator.
//
// The scheduler is long-running and context-aware for graceful shutdown.
// It logs failures but keeps ticking; the next tick retries whatever is
// still missing.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JonMunkholm/countydash/internal/logging"
)

// ScheduleConfig holds configuration for the update scheduler.
type ScheduleConfig struct {
	Region   string        // State FIPS code or AllRegions
	Target   TableRef      // Table kept up to date
	Interval time.Duration // How often to run; must be positive
}

// StartUpdateScheduler runs IncrementalUpdate immediately and then every
// Interval until ctx is cancelled. A tick that finds another run in progress
// is skipped.
func (s *Service) StartUpdateScheduler(ctx context.Context, cfg ScheduleConfig) {
	slog.Info("update scheduler started",
		"region", cfg.Region,
		"target", cfg.Target.String(),
		"interval", cfg.Interval.String(),
	)

	s.runScheduledUpdate(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("update scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduledUpdate(ctx, cfg)
		}
	}
}

// runScheduledUpdate performs one update cycle.
func (s *Service) runScheduledUpdate(ctx context.Context, cfg ScheduleConfig) {
	ctx, _ = logging.EnsureRunID(ctx)
	logger := logging.FromContext(ctx)
	start := time.Now()

	report, err := s.IncrementalUpdate(ctx, cfg.Region, cfg.Target)
	switch {
	case errors.Is(err, ErrUpdateInProgress):
		logger.Info("scheduled update skipped, another run in progress")
		return
	case err != nil:
		logger.Error("scheduled update failed",
			"error", err,
			"published", len(report.Published),
			"failed", len(report.Failed),
		)
		return
	}

	logger.Info("scheduled update completed",
		"missing", len(report.Missing),
		"published", len(report.Published),
		"skipped", len(report.Skipped),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
