// Package lockout implements the failed-attempt counter and the escalating
// lockout state machine (UNLOCKED, LOCKED). All state lives in the store so an
// active lockout survives restarts.
package lockout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/matcenter/internal/clock"
	"github.com/BradenHooton/matcenter/internal/models"
	"github.com/BradenHooton/matcenter/internal/store"
)

// Policy holds the tunables of the engine
type Policy struct {
	MaxFailedAttempts int
	Durations         []time.Duration // escalation table, non-decreasing
	StaleAge          time.Duration   // escalation resets when the last lockout ended longer ago than this
}

// DefaultPolicy returns threshold 3 with the 5m/15m/1h/24h escalation table
func DefaultPolicy() Policy {
	return Policy{
		MaxFailedAttempts: 3,
		Durations:         []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour, 24 * time.Hour},
		StaleAge:          7 * 24 * time.Hour,
	}
}

// DurationFor returns the lockout length for the n-th lockout (1-based)
func (p Policy) DurationFor(n int) time.Duration {
	if len(p.Durations) == 0 {
		return 0
	}
	idx := n - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(p.Durations)-1 {
		idx = len(p.Durations) - 1
	}
	return p.Durations[idx]
}

// Engine reads and writes lockout state through the store. The mutex orders
// calls within one process; separate processes sharing a store resolve as
// last-write-wins.
type Engine struct {
	store  store.Store
	clock  clock.Clock
	policy Policy
	logger *slog.Logger

	mu sync.Mutex
}

func NewEngine(s store.Store, c clock.Clock, policy Policy, logger *slog.Logger) *Engine {
	return &Engine{store: s, clock: c, policy: policy, logger: logger}
}

// Policy returns the configured policy
func (e *Engine) Policy() Policy {
	return e.policy
}

// Reconcile performs the lazy LOCKED -> UNLOCKED transition: an expired
// lockout is cleared and the failed-attempt counter reset. It reports
// whether a transition happened.
func (e *Engine) Reconcile(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconcile(ctx)
}

func (e *Engine) reconcile(ctx context.Context) (bool, error) {
	until, err := store.GetTime(ctx, e.store, store.KeyLockoutUntil)
	if err != nil {
		return false, fmt.Errorf("read lockout until: %w", err)
	}
	if until.IsZero() || e.clock.Now().Before(until) {
		return false, nil
	}

	if err := e.store.Remove(ctx, store.KeyLockoutUntil); err != nil {
		return false, fmt.Errorf("clear lockout: %w", err)
	}
	if err := store.SetInt(ctx, e.store, store.KeyFailedAttempts, 0); err != nil {
		return false, fmt.Errorf("reset failed attempts: %w", err)
	}

	e.logger.Info("lockout expired", slog.Time("until", until))
	return true, nil
}

// IsLockedOut reconciles and then reports whether a lockout is active
func (e *Engine) IsLockedOut(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.reconcile(ctx); err != nil {
		return false, err
	}
	until, err := store.GetTime(ctx, e.store, store.KeyLockoutUntil)
	if err != nil {
		return false, fmt.Errorf("read lockout until: %w", err)
	}
	return !until.IsZero() && e.clock.Now().Before(until), nil
}

// Snapshot reads the persisted state without side effects
func (e *Engine) Snapshot(ctx context.Context) (models.LockoutSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(ctx)
}

func (e *Engine) snapshot(ctx context.Context) (models.LockoutSnapshot, error) {
	var snap models.LockoutSnapshot
	var err error

	if snap.FailedAttempts, err = store.GetInt(ctx, e.store, store.KeyFailedAttempts); err != nil {
		return snap, fmt.Errorf("read failed attempts: %w", err)
	}
	if snap.LockedUntil, err = store.GetTime(ctx, e.store, store.KeyLockoutUntil); err != nil {
		return snap, fmt.Errorf("read lockout until: %w", err)
	}
	if snap.LockoutCount, err = store.GetInt(ctx, e.store, store.KeyLockoutCount); err != nil {
		return snap, fmt.Errorf("read lockout count: %w", err)
	}
	if snap.LastLockout, err = store.GetTime(ctx, e.store, store.KeyLastLockout); err != nil {
		return snap, fmt.Errorf("read last lockout: %w", err)
	}
	return snap, nil
}

// RemainingLockout is the time left on the active lockout, or zero
func (e *Engine) RemainingLockout(ctx context.Context) time.Duration {
	until, err := store.GetTime(ctx, e.store, store.KeyLockoutUntil)
	if err != nil || until.IsZero() {
		return 0
	}
	if remaining := until.Sub(e.clock.Now()); remaining > 0 {
		return remaining
	}
	return 0
}

// RemainingAttempts is how many more failures are allowed before a lockout
func (e *Engine) RemainingAttempts(ctx context.Context) int {
	failed, err := store.GetInt(ctx, e.store, store.KeyFailedAttempts)
	if err != nil {
		return 0
	}
	if remaining := e.policy.MaxFailedAttempts - failed; remaining > 0 {
		return remaining
	}
	return 0
}

// ThresholdReached reports whether count failures should trigger a lockout
func (e *Engine) ThresholdReached(count int) bool {
	return count >= e.policy.MaxFailedAttempts
}

// RecordFailure increments the failed-attempt counter and returns the new value
func (e *Engine) RecordFailure(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	failed, err := store.GetInt(ctx, e.store, store.KeyFailedAttempts)
	if err != nil {
		return 0, fmt.Errorf("read failed attempts: %w", err)
	}
	failed++
	if err := store.SetInt(ctx, e.store, store.KeyFailedAttempts, failed); err != nil {
		return 0, fmt.Errorf("write failed attempts: %w", err)
	}
	return failed, nil
}

// StartLockout escalates and starts a lockout, returning its duration. The
// escalation counter only climbs here; the stale reset belongs to
// ResetOnSuccess, so failures alone never return to the first tier.
func (e *Engine) StartLockout(ctx context.Context) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.snapshot(ctx)
	if err != nil {
		return 0, err
	}

	now := e.clock.Now()
	count := snap.LockoutCount + 1

	duration := e.policy.DurationFor(count)
	until := now.Add(duration)

	if err := store.SetTime(ctx, e.store, store.KeyLockoutUntil, until); err != nil {
		return 0, fmt.Errorf("write lockout until: %w", err)
	}
	if err := store.SetInt(ctx, e.store, store.KeyLockoutCount, count); err != nil {
		return 0, fmt.Errorf("write lockout count: %w", err)
	}
	if err := store.SetTime(ctx, e.store, store.KeyLastLockout, until); err != nil {
		return 0, fmt.Errorf("write last lockout: %w", err)
	}

	e.logger.Warn("lockout started",
		slog.Int("lockout_count", count),
		slog.Duration("duration", duration),
		slog.Time("until", until),
	)
	return duration, nil
}

// ResetOnSuccess clears the failure counter and any lockout. The escalation
// counter survives unless it is already zero or the last lockout is stale.
func (e *Engine) ResetOnSuccess(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}

	if err := store.SetInt(ctx, e.store, store.KeyFailedAttempts, 0); err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	if err := e.store.Remove(ctx, store.KeyLockoutUntil); err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}

	if snap.LockoutCount == 0 || e.stale(snap, e.clock.Now()) {
		if err := store.SetInt(ctx, e.store, store.KeyLockoutCount, 0); err != nil {
			return fmt.Errorf("reset lockout count: %w", err)
		}
		if err := e.store.Remove(ctx, store.KeyLastLockout); err != nil {
			return fmt.Errorf("clear last lockout: %w", err)
		}
	}
	return nil
}

// Clear wipes every lockout key
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, key := range []string{store.KeyFailedAttempts, store.KeyLockoutUntil, store.KeyLockoutCount, store.KeyLastLockout} {
		if err := e.store.Remove(ctx, key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}
	return nil
}

func (e *Engine) stale(snap models.LockoutSnapshot, now time.Time) bool {
	return !snap.LastLockout.IsZero() && now.Sub(snap.LastLockout) > e.policy.StaleAge
}
