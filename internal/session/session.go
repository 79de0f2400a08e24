// Package session persists the proof of a prior successful login, bound to
// the device fingerprint and obfuscated in the store.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/matcenter/internal/clock"
	"github.com/BradenHooton/matcenter/internal/models"
	"github.com/BradenHooton/matcenter/internal/obfuscate"
	"github.com/BradenHooton/matcenter/internal/store"
	pkgauth "github.com/BradenHooton/matcenter/pkg/auth"
	pkglogger "github.com/BradenHooton/matcenter/pkg/logger"
)

const recordVersion = 1

// FingerprintSource is satisfied by *fingerprint.Generator
type FingerprintSource interface {
	Current() string
	Key() string
}

// record is the stored form; legacy records have no "v" and may carry
// expiresAt: null for sessions that never expire.
type record struct {
	V            int    `json:"v,omitempty"`
	Token        string `json:"token"`
	PasswordHash string `json:"passwordHash"`
	Fingerprint  string `json:"fingerprint"`
	CreatedAt    int64  `json:"createdAt"`
	ExpiresAt    *int64 `json:"expiresAt"`
}

type Manager struct {
	store    store.Store
	fp       FingerprintSource
	clock    clock.Clock
	lifetime time.Duration // zero means unbounded
	logger   *slog.Logger
}

func NewManager(s store.Store, fp FingerprintSource, c clock.Clock, lifetime time.Duration, logger *slog.Logger) *Manager {
	return &Manager{store: s, fp: fp, clock: c, lifetime: lifetime, logger: logger}
}

// Create issues and persists a new session for the given credential hash
func (m *Manager) Create(ctx context.Context, credentialHash string) (*models.Session, error) {
	token, err := pkgauth.GenerateToken()
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	sess := &models.Session{
		Token:          token,
		CredentialHash: credentialHash,
		Fingerprint:    m.fp.Current(),
		CreatedAt:      now,
	}
	if m.lifetime > 0 {
		sess.ExpiresAt = now.Add(m.lifetime)
	}

	blob, err := obfuscate.Encode(toRecord(sess), m.fp.Key())
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.Set(ctx, store.KeySession, blob); err != nil {
		return nil, fmt.Errorf("write session: %w", err)
	}

	m.logger.Info("session created",
		slog.String("fingerprint", pkglogger.ShortFingerprint(sess.Fingerprint)),
		slog.Bool("unbounded", sess.Unbounded()),
	)
	return sess, nil
}

// Valid returns the stored session if it is present, decodable, unexpired
// and bound to the current device. Expired and mismatched sessions are
// deleted. Every failure wraps models.ErrNoSession.
func (m *Manager) Valid(ctx context.Context) (*models.Session, error) {
	sess, ok := m.Peek(ctx)
	if !ok {
		return nil, models.ErrNoSession
	}

	if sess.ExpiredAt(m.clock.Now()) {
		m.discard(ctx)
		return nil, models.ErrSessionExpired
	}

	// The fingerprint is only compared once it is known for this process
	if current := m.fp.Current(); current != "" && sess.Fingerprint != current {
		m.discard(ctx)
		return nil, models.ErrSessionFingerprintMismatch
	}

	return sess, nil
}

// Peek decodes the stored session without validating or deleting it
func (m *Manager) Peek(ctx context.Context) (*models.Session, bool) {
	blob, ok, err := m.store.Get(ctx, store.KeySession)
	if err != nil {
		m.logger.Warn("failed to read session", slog.Any("error", err))
		return nil, false
	}
	if !ok || blob == "" {
		return nil, false
	}

	keys := []string{m.fp.Key()}
	if keys[0] != obfuscate.FallbackKey {
		keys = append(keys, obfuscate.FallbackKey)
	}
	for _, key := range keys {
		var rec record
		if err := obfuscate.Decode(blob, key, &rec); err == nil && rec.Token != "" {
			return rec.toSession(), true
		}
	}
	return nil, false
}

// Clear removes the stored session; clearing an absent session is not an error
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Remove(ctx, store.KeySession); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (m *Manager) discard(ctx context.Context) {
	if err := m.Clear(ctx); err != nil {
		m.logger.Warn("failed to discard session", slog.Any("error", err))
	}
}

func toRecord(s *models.Session) record {
	rec := record{
		V:            recordVersion,
		Token:        s.Token,
		PasswordHash: s.CredentialHash,
		Fingerprint:  s.Fingerprint,
		CreatedAt:    s.CreatedAt.UnixMilli(),
	}
	if !s.Unbounded() {
		ms := s.ExpiresAt.UnixMilli()
		rec.ExpiresAt = &ms
	}
	return rec
}

func (r record) toSession() *models.Session {
	s := &models.Session{
		Token:          r.Token,
		CredentialHash: r.PasswordHash,
		Fingerprint:    r.Fingerprint,
		CreatedAt:      time.UnixMilli(r.CreatedAt),
	}
	if r.ExpiresAt != nil {
		s.ExpiresAt = time.UnixMilli(*r.ExpiresAt)
	}
	return s
}
