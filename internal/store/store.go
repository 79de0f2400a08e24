// Package store is the origin-scoped persistent key-value store that stands
// in for browser local storage. Every persisted auth entity lives here as a
// string value.
package store

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Keys used by the authentication subsystem
const (
	KeyFailedAttempts = "matcenter_failed_attempts"
	KeyLockoutUntil   = "matcenter_lockout_until"
	KeyLockoutCount   = "matcenter_lockout_count"
	KeyLastLockout    = "matcenter_lockout_last"
	KeyAttemptHistory = "matcenter_attempt_history"
	KeySession        = "matcenter_session"
	KeyFingerprint    = "matcenter_fp"
	KeyCredential     = "matcenter_auth"
)

// Store is a synchronous string key-value store. Get reports ok=false for
// absent keys. Remove of an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// GetInt reads an integer value. Absent or unparsable values read as 0.
func GetInt(ctx context.Context, s Store, key string) (int, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// SetInt writes an integer value
func SetInt(ctx context.Context, s Store, key string, n int) error {
	return s.Set(ctx, key, strconv.Itoa(n))
}

// GetTime reads a unix-millisecond timestamp. Absent, zero or unparsable
// values read as the zero time.
func GetTime(ctx context.Context, s Store, key string) (time.Time, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// SetTime writes t as unix milliseconds; the zero time is written as "0"
func SetTime(ctx context.Context, s Store, key string, t time.Time) error {
	if t.IsZero() {
		return s.Set(ctx, key, "0")
	}
	return s.Set(ctx, key, strconv.FormatInt(t.UnixMilli(), 10))
}
