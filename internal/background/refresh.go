package background

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/matcenter/internal/models"
	"github.com/BradenHooton/matcenter/internal/oracle"
)

// Refresher reloads protected data for an authenticated context
type Refresher interface {
	Refresh(ctx context.Context) (*models.ProtectedData, error)
}

// RefreshManager periodically reloads protected data while the context is
// authenticated. Failures are logged and never end the session.
type RefreshManager struct {
	refresher Refresher
	logger    *slog.Logger
	interval  time.Duration
	timeout   time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewRefreshManager creates a new refresh manager
func NewRefreshManager(refresher Refresher, logger *slog.Logger, interval, timeout time.Duration) *RefreshManager {
	return &RefreshManager{
		refresher: refresher,
		logger:    logger,
		interval:  interval,
		timeout:   timeout,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the refresh loop until Stop is called or ctx is done
func (rm *RefreshManager) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rm.runRefresh(ctx)
		case <-rm.stopCh:
			rm.logger.Info("refresh manager stopped")
			return
		case <-ctx.Done():
			rm.logger.Info("refresh manager context cancelled")
			return
		}
	}
}

func (rm *RefreshManager) runRefresh(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, rm.timeout)
	defer cancel()

	data, err := rm.refresher.Refresh(refreshCtx)
	switch {
	case errors.Is(err, models.ErrNotAuthenticated):
		return
	case oracle.IsTransient(err):
		rm.logger.Warn("background refresh failed, retrying next tick", slog.Any("error", err))
		return
	case err != nil:
		rm.logger.Error("background refresh rejected", slog.Any("error", err))
		return
	}

	rm.logger.Info("protected data refreshed", slog.Int("tasks", len(data.Tasks)))
}

// Stop signals the refresh manager to stop; it is safe to call twice
func (rm *RefreshManager) Stop() {
	rm.stopOnce.Do(func() { close(rm.stopCh) })
}
