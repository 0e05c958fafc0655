// Package scheduler runs crawl cycles periodically in the background.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/carwatch/olx-monitor/internal/processor"
)

// CycleRunner is satisfied by *processor.Crawler.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*processor.CycleResult, error)
}

type Scheduler struct {
	runner     CycleRunner
	interval   time.Duration
	runOnStart bool
}

func New(runner CycleRunner, interval time.Duration, runOnStart bool) *Scheduler {
	return &Scheduler{runner: runner, interval: interval, runOnStart: runOnStart}
}

// Run blocks until ctx is done. The next cycle starts one interval after the
// previous one finished; a tick that finds a cycle already running is skipped.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("Scheduler started", "interval", s.interval, "runOnStart", s.runOnStart)
	if s.runOnStart {
		s.tick(ctx)
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in crawl cycle", "panic", r)
		}
	}()

	result, err := s.runner.RunCycle(ctx)
	switch {
	case errors.Is(err, processor.ErrCycleInProgress):
		slog.Info("Skipping scheduled cycle, another cycle is running")
	case err != nil:
		slog.Error("Monitor loop error", "error", err)
	default:
		slog.Debug("Scheduled cycle complete", "run", result.RunID, "new", len(result.NewAds))
	}
}
