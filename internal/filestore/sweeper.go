package filestore

// sweeper.go removes expired artifacts in the background.
//
// The sweep runs once on start and then every interval until the context is
// cancelled. A failed sweep is logged and retried on the next tick; it never
// stops the loop.

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically calls SweepExpired on a Store.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger

	mu sync.Mutex // one sweep at a time
}

// NewSweeper creates a sweeper for store.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   slog.Default().With("component", "sweeper"),
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("artifact sweeper started", "interval", s.interval.String())

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("artifact sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns how many artifacts it removed.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	removed, err := s.store.SweepExpired(ctx)
	elapsed := time.Since(start)

	sweepRunsTotal.Inc()
	sweepDurationSeconds.Observe(elapsed.Seconds())

	if err != nil {
		s.logger.Error("artifact sweep failed",
			"removed", removed,
			"error", err,
			"duration_ms", elapsed.Milliseconds(),
		)
		return removed
	}

	if removed > 0 {
		s.logger.Info("expired artifacts removed",
			"removed", removed,
			"duration_ms", elapsed.Milliseconds(),
		)
	} else {
		s.logger.Debug("artifact sweep found nothing", "duration_ms", elapsed.Milliseconds())
	}
	return removed
}
