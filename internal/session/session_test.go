package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/matcenter/internal/clock"
	"github.com/BradenHooton/matcenter/internal/models"
	"github.com/BradenHooton/matcenter/internal/obfuscate"
	"github.com/BradenHooton/matcenter/internal/session"
	"github.com/BradenHooton/matcenter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeFingerprint struct {
	current string
}

func (f *fakeFingerprint) Current() string { return f.current }

func (f *fakeFingerprint) Key() string {
	if f.current == "" {
		return obfuscate.FallbackKey
	}
	return f.current
}

func newManager(lifetime time.Duration) (*session.Manager, *store.Memory, *clock.Fake, *fakeFingerprint) {
	s := store.NewMemory()
	c := clock.NewFake(epoch)
	fp := &fakeFingerprint{current: "fp-device-a"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return session.NewManager(s, fp, c, lifetime, logger), s, c, fp
}

func TestCreate_Unbounded(t *testing.T) {
	ctx := context.Background()
	m, s, c, _ := newManager(0)

	sess, err := m.Create(ctx, "hash")
	require.NoError(t, err)
	assert.Regexp(t, "^[0-9a-f]{64}$", sess.Token)
	assert.Equal(t, "hash", sess.CredentialHash)
	assert.Equal(t, "fp-device-a", sess.Fingerprint)
	assert.True(t, sess.Unbounded())

	blob, ok, _ := s.Get(ctx, store.KeySession)
	require.True(t, ok)
	assert.NotContains(t, blob, "hash")

	c.Advance(10 * 365 * 24 * time.Hour)
	got, err := m.Valid(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.Token, got.Token)
	assert.True(t, got.CreatedAt.Equal(epoch))
}

func TestValid_Expired(t *testing.T) {
	ctx := context.Background()
	m, s, c, _ := newManager(time.Hour)

	_, err := m.Create(ctx, "hash")
	require.NoError(t, err)

	c.Advance(59 * time.Minute)
	_, err = m.Valid(ctx)
	require.NoError(t, err)

	c.Advance(2 * time.Minute)
	_, err = m.Valid(ctx)
	assert.ErrorIs(t, err, models.ErrSessionExpired)
	assert.ErrorIs(t, err, models.ErrNoSession)

	_, ok, _ := s.Get(ctx, store.KeySession)
	assert.False(t, ok, "expired session must be deleted")
}

func TestValid_FingerprintMismatchFailsClosed(t *testing.T) {
	ctx := context.Background()
	m, s, _, _ := newManager(0)

	// a record bound to another device but encoded with our key
	rec := map[string]any{
		"v": 1, "token": "t", "passwordHash": "h", "fingerprint": "fp-device-b",
		"createdAt": epoch.UnixMilli(), "expiresAt": nil,
	}
	blob, err := obfuscate.Encode(rec, "fp-device-a")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, store.KeySession, blob))

	_, err = m.Valid(ctx)
	assert.ErrorIs(t, err, models.ErrSessionFingerprintMismatch)

	_, ok, _ := s.Get(ctx, store.KeySession)
	assert.False(t, ok)
}

func TestValid_FingerprintUnknownSkipsCheck(t *testing.T) {
	ctx := context.Background()
	m, _, _, fp := newManager(0)

	fp.current = ""
	_, err := m.Create(ctx, "hash")
	require.NoError(t, err)

	got, err := m.Valid(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Fingerprint)
}

func TestValid_FallbackKeyedSessionStillChecked(t *testing.T) {
	ctx := context.Background()
	m, _, _, fp := newManager(0)

	fp.current = ""
	_, err := m.Create(ctx, "hash")
	require.NoError(t, err)

	fp.current = "fp-device-a"
	_, err = m.Valid(ctx)
	assert.ErrorIs(t, err, models.ErrSessionFingerprintMismatch)
}

func TestValid_CorruptIsNoSession(t *testing.T) {
	ctx := context.Background()
	m, s, _, _ := newManager(0)

	require.NoError(t, s.Set(ctx, store.KeySession, "bm90IGpzb24="))
	_, err := m.Valid(ctx)
	assert.True(t, errors.Is(err, models.ErrNoSession))

	_, err = m.Valid(ctx)
	assert.ErrorIs(t, err, models.ErrNoSession)
}

func TestValid_LegacyRecordWithNullExpiry(t *testing.T) {
	ctx := context.Background()
	m, s, _, _ := newManager(time.Hour)

	legacy := map[string]any{
		"token": "legacy", "passwordHash": "h", "fingerprint": "fp-device-a",
		"createdAt": epoch.Add(-48 * time.Hour).UnixMilli(), "expiresAt": nil,
	}
	blob, err := obfuscate.Encode(legacy, "fp-device-a")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, store.KeySession, blob))

	got, err := m.Valid(ctx)
	require.NoError(t, err)
	assert.Equal(t, "legacy", got.Token)
	assert.True(t, got.Unbounded())
}

func TestPeek_NoSideEffects(t *testing.T) {
	ctx := context.Background()
	m, s, c, _ := newManager(time.Minute)

	_, err := m.Create(ctx, "hash")
	require.NoError(t, err)
	c.Advance(time.Hour)

	sess, ok := m.Peek(ctx)
	require.True(t, ok)
	assert.True(t, sess.ExpiredAt(c.Now()))

	_, stillThere, _ := s.Get(ctx, store.KeySession)
	assert.True(t, stillThere)
}

func TestClear_Idempotent(t *testing.T) {
	ctx := context.Background()
	m, s, _, _ := newManager(0)

	_, err := m.Create(ctx, "hash")
	require.NoError(t, err)
	require.NoError(t, m.Clear(ctx))
	require.NoError(t, m.Clear(ctx))
	assert.Empty(t, s.Keys())
}

func TestCreate_WriteFailure(t *testing.T) {
	m, s, _, _ := newManager(0)
	s.WriteErr = errors.New("quota exceeded")

	_, err := m.Create(context.Background(), "hash")
	assert.Error(t, err)
}
