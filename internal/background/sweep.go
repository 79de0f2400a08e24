package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper drops expired in-memory state and reports how much it removed
type Sweeper interface {
	SweepIdle(ctx context.Context) int
}

// SweepManager periodically removes idle knowledge-check sessions
type SweepManager struct {
	sweeper  Sweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSweepManager creates a new sweep manager
func NewSweepManager(sweeper Sweeper, logger *slog.Logger, interval time.Duration) *SweepManager {
	return &SweepManager{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is done
func (sm *SweepManager) Start(ctx context.Context) {
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := sm.sweeper.SweepIdle(ctx); n > 0 {
				sm.logger.Debug("sweep completed", slog.Int("removed", n))
			}
		case <-sm.stopCh:
			sm.logger.Info("sweep manager stopped")
			return
		case <-ctx.Done():
			sm.logger.Info("sweep manager context cancelled")
			return
		}
	}
}

// Stop signals the sweep manager to stop
func (sm *SweepManager) Stop() {
	sm.stopOnce.Do(func() { close(sm.stopCh) })
}
