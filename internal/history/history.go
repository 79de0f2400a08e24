// Package history keeps a bounded, obfuscated log of login attempts and
// flags patterns that look like credential guessing or a shared credential.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/matcenter/internal/clock"
	"github.com/BradenHooton/matcenter/internal/models"
	"github.com/BradenHooton/matcenter/internal/obfuscate"
	"github.com/BradenHooton/matcenter/internal/store"
)

const (
	MaxRecords              = 50
	SuspicionWindow         = 10
	MinRecordsForSuspicion  = 5
	MaxDistinctFingerprints = 3
	MaxWindowFailures       = 7

	recordVersion = 1
)

// KeySource supplies the obfuscation key; *fingerprint.Generator satisfies it
type KeySource interface {
	Key() string
}

type wireAttempt struct {
	Timestamp   int64  `json:"timestamp"`
	Success     bool   `json:"success"`
	Fingerprint string `json:"fingerprint"`
}

type wireHistory struct {
	V        int           `json:"v"`
	Attempts []wireAttempt `json:"attempts"`
}

// Recorder appends to and reads the attempt history
type Recorder struct {
	store  store.Store
	keys   KeySource
	clock  clock.Clock
	logger *slog.Logger

	mu sync.Mutex
}

func NewRecorder(s store.Store, keys KeySource, c clock.Clock, logger *slog.Logger) *Recorder {
	return &Recorder{store: s, keys: keys, clock: c, logger: logger}
}

// Record appends an attempt, evicting the oldest entries beyond MaxRecords.
// A failed read returns the error and leaves the stored history untouched.
func (r *Recorder) Record(ctx context.Context, success bool, fingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempts, err := r.load(ctx)
	if err != nil {
		return err
	}
	attempts = append(attempts, models.AttemptRecord{
		Timestamp:   r.clock.Now(),
		Success:     success,
		Fingerprint: fingerprint,
	})
	if len(attempts) > MaxRecords {
		attempts = attempts[len(attempts)-MaxRecords:]
	}

	return r.save(ctx, attempts)
}

// All returns the stored attempts, oldest first. Corrupt data and read
// errors both read as empty; read errors are logged.
func (r *Recorder) All(ctx context.Context) []models.AttemptRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempts, err := r.load(ctx)
	if err != nil {
		r.logger.Warn("failed to read attempt history", slog.Any("error", err))
		return nil
	}
	return attempts
}

// DetectSuspicious applies Suspicious to the stored history
func (r *Recorder) DetectSuspicious(ctx context.Context) bool {
	return Suspicious(r.All(ctx))
}

// Summary aggregates the history for the security report
func (r *Recorder) Summary(ctx context.Context) models.AttemptSummary {
	attempts := r.All(ctx)

	summary := models.AttemptSummary{
		Total:      len(attempts),
		Recent:     recent(attempts),
		Suspicious: Suspicious(attempts),
	}
	for _, a := range attempts {
		if a.Success {
			summary.Successes++
		} else {
			summary.Failures++
		}
	}
	return summary
}

// Clear deletes the stored history
func (r *Recorder) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Remove(ctx, store.KeyAttemptHistory)
}

// Suspicious reports true when, among the last SuspicionWindow attempts,
// more than MaxDistinctFingerprints devices appear or more than
// MaxWindowFailures failed. Fewer than MinRecordsForSuspicion attempts
// are never suspicious.
func Suspicious(attempts []models.AttemptRecord) bool {
	if len(attempts) < MinRecordsForSuspicion {
		return false
	}

	fingerprints := make(map[string]struct{})
	failures := 0
	for _, a := range recent(attempts) {
		fingerprints[a.Fingerprint] = struct{}{}
		if !a.Success {
			failures++
		}
	}
	return len(fingerprints) > MaxDistinctFingerprints || failures > MaxWindowFailures
}

func recent(attempts []models.AttemptRecord) []models.AttemptRecord {
	if len(attempts) <= SuspicionWindow {
		return attempts
	}
	return attempts[len(attempts)-SuspicionWindow:]
}

// load decodes with the current key, then the fallback key so records
// written before the fingerprint was known stay readable. Only store errors
// are returned; an undecodable blob is empty history.
func (r *Recorder) load(ctx context.Context) ([]models.AttemptRecord, error) {
	blob, ok, err := r.store.Get(ctx, store.KeyAttemptHistory)
	if err != nil {
		return nil, fmt.Errorf("read attempt history: %w", err)
	}
	if !ok || blob == "" {
		return nil, nil
	}

	for _, key := range candidateKeys(r.keys.Key()) {
		if attempts, ok := decode(blob, key); ok {
			return attempts, nil
		}
	}

	r.logger.Warn("discarding undecodable attempt history")
	return nil, nil
}

func (r *Recorder) save(ctx context.Context, attempts []models.AttemptRecord) error {
	rec := wireHistory{V: recordVersion, Attempts: make([]wireAttempt, 0, len(attempts))}
	for _, a := range attempts {
		rec.Attempts = append(rec.Attempts, wireAttempt{
			Timestamp:   a.Timestamp.UnixMilli(),
			Success:     a.Success,
			Fingerprint: a.Fingerprint,
		})
	}

	blob, err := obfuscate.Encode(rec, r.keys.Key())
	if err != nil {
		return fmt.Errorf("encode attempt history: %w", err)
	}
	if err := r.store.Set(ctx, store.KeyAttemptHistory, blob); err != nil {
		return fmt.Errorf("write attempt history: %w", err)
	}
	return nil
}

// decode accepts the versioned record and the legacy bare array
func decode(blob, key string) ([]models.AttemptRecord, bool) {
	var raw json.RawMessage
	if err := obfuscate.Decode(blob, key, &raw); err != nil {
		return nil, false
	}

	var wire []wireAttempt
	var rec wireHistory
	switch {
	case json.Unmarshal(raw, &rec) == nil && rec.V == recordVersion:
		wire = rec.Attempts
	case json.Unmarshal(raw, &wire) == nil:
	default:
		return nil, false
	}

	attempts := make([]models.AttemptRecord, 0, len(wire))
	for _, w := range wire {
		attempts = append(attempts, models.AttemptRecord{
			Timestamp:   time.UnixMilli(w.Timestamp),
			Success:     w.Success,
			Fingerprint: w.Fingerprint,
		})
	}
	return attempts, true
}

func candidateKeys(key string) []string {
	if key == obfuscate.FallbackKey || key == "" {
		return []string{obfuscate.FallbackKey}
	}
	return []string{key, obfuscate.FallbackKey}
}
