package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/matcenter/internal/lockout"
	"github.com/BradenHooton/matcenter/internal/models"
	"github.com/BradenHooton/matcenter/internal/obfuscate"
	"github.com/BradenHooton/matcenter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodCredential = "correct horse"

// ============================================================================
// Login
// ============================================================================

func TestAuthService_Login_Success(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(true, 1, 2, 3))

	result, err := env.Service.Login(ctx, goodCredential)
	require.NoError(t, err)

	assert.Equal(t, models.StatusAuthenticated, result.Status)
	assert.True(t, result.IsAdmin)
	assert.Equal(t, 3, result.TaskCount)

	remembered, ok, _ := env.Store.Get(ctx, store.KeyCredential)
	assert.True(t, ok)
	assert.Equal(t, goodCredential, remembered)

	sess, err := env.Sessions.Valid(ctx)
	require.NoError(t, err)
	assert.Equal(t, env.Fingerprint.Current(), sess.Fingerprint)
	assert.NotEqual(t, goodCredential, sess.CredentialHash)

	attempts := env.History.All(ctx)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)

	require.NoError(t, env.Service.Authorize(ctx))
	assert.True(t, env.Service.IsAdmin())
}

func TestAuthService_Login_SendsClientID(t *testing.T) {
	env := NewTestEnv(t)
	var gotClientID string
	env.Source.FetchFunc = func(_ context.Context, _, clientID string) (*models.ProtectedData, error) {
		gotClientID = clientID
		return NewTestData(false, 1), nil
	}

	_, err := env.Service.Login(context.Background(), goodCredential)
	require.NoError(t, err)
	assert.Len(t, gotClientID, 16)
	assert.Equal(t, env.Fingerprint.Current()[:16], gotClientID)
}

func TestAuthService_Login_EmptyCredential(t *testing.T) {
	env := NewTestEnv(t)

	_, err := env.Service.Login(context.Background(), "   ")
	assert.ErrorIs(t, err, models.ErrBadRequest)
	assert.Zero(t, env.Source.FetchCalls.Load())
}

func TestAuthService_Login_RejectedCountsDown(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 1))

	result, err := env.Service.Login(ctx, "wrong")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Status)
	assert.Equal(t, 2, result.RemainingAttempts)
	assert.Contains(t, result.Message, "Attempts remaining: 2")
	assert.False(t, result.Suspicious)

	result, err = env.Service.Login(ctx, "wrong")
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemainingAttempts)

	_, ok, _ := env.Store.Get(ctx, store.KeyCredential)
	assert.False(t, ok)
	assert.ErrorIs(t, env.Service.Authorize(ctx), models.ErrNotAuthenticated)
}

func TestAuthService_Login_TransportErrorIsCounted(t *testing.T) {
	env := NewTestEnv(t)
	env.Source.FetchFunc = func(context.Context, string, string) (*models.ProtectedData, error) {
		return nil, models.ErrOracleUnavailable
	}

	result, err := env.Service.Login(context.Background(), goodCredential)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Status)
	assert.Equal(t, 2, result.RemainingAttempts)
}

func TestAuthService_Login_CancelledIsNotCounted(t *testing.T) {
	env := NewTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	env.Source.FetchFunc = func(ctx context.Context, _, _ string) (*models.ProtectedData, error) {
		cancel()
		return nil, models.ErrOracleUnavailable
	}

	_, err := env.Service.Login(ctx, goodCredential)
	assert.ErrorIs(t, err, context.Canceled)

	snap, err := env.Lockout.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.FailedAttempts)
	assert.Empty(t, env.History.All(context.Background()))
}

func TestAuthService_Login_SingleInFlight(t *testing.T) {
	env := NewTestEnv(t)
	started := make(chan struct{})
	release := make(chan struct{})
	env.Source.FetchFunc = func(context.Context, string, string) (*models.ProtectedData, error) {
		close(started)
		<-release
		return NewTestData(false, 1), nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = env.Service.Login(context.Background(), goodCredential)
	}()

	<-started
	_, err := env.Service.Login(context.Background(), goodCredential)
	assert.ErrorIs(t, err, models.ErrLoginInProgress)

	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, env.Source.FetchCalls.Load(), "the rejected login never reaches the data source")
}

// Suspicion changes the message but never locks on its own.
func TestAuthService_Login_SuspiciousWarning(t *testing.T) {
	ctx := context.Background()
	policy := lockout.DefaultPolicy()
	policy.MaxFailedAttempts = 20
	env := NewTestEnv(t, policy)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 1))

	for i := 0; i < 7; i++ {
		result, err := env.Service.Login(ctx, "wrong")
		require.NoError(t, err)
		assert.False(t, result.Suspicious, "attempt %d", i+1)
	}

	result, err := env.Service.Login(ctx, "wrong")
	require.NoError(t, err)
	assert.True(t, result.Suspicious)
	assert.Equal(t, models.StatusRejected, result.Status)
	assert.Contains(t, result.Message, "Suspicious activity detected!")

	locked, err := env.Lockout.IsLockedOut(ctx)
	require.NoError(t, err)
	assert.False(t, locked)
}

// Three failures lock for five minutes; the fourth attempt never reaches the
// data source; after the lockout a correct credential succeeds and the
// escalation counter stays at one.
func TestAuthService_Login_LockoutScenario(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 1))

	for i := 0; i < 2; i++ {
		result, err := env.Service.Login(ctx, "wrong")
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, result.Status)
	}

	result, err := env.Service.Login(ctx, "wrong")
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocked, result.Status)
	assert.Equal(t, 5*time.Minute, result.LockoutRemaining)
	assert.EqualValues(t, 3, env.Source.FetchCalls.Load())

	env.Clock.Advance(30 * time.Second)
	result, err = env.Service.Login(ctx, goodCredential)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocked, result.Status)
	assert.Equal(t, 4*time.Minute+30*time.Second, result.LockoutRemaining)
	assert.EqualValues(t, 3, env.Source.FetchCalls.Load(), "locked attempts must not contact the data source")

	env.Clock.Advance(4*time.Minute + 30*time.Second)
	status, err := env.Service.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Locked)
	assert.Zero(t, status.FailedAttempts)

	result, err = env.Service.Login(ctx, goodCredential)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAuthenticated, result.Status)

	snap, err := env.Lockout.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.FailedAttempts)
	assert.True(t, snap.LockedUntil.IsZero())
	assert.Equal(t, 1, snap.LockoutCount)
}

func TestAuthService_Login_SecondLockoutEscalates(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 1))

	for i := 0; i < 3; i++ {
		_, err := env.Service.Login(ctx, "wrong")
		require.NoError(t, err)
	}
	env.Clock.Advance(5 * time.Minute)

	var result *models.LoginResult
	for i := 0; i < 3; i++ {
		var err error
		result, err = env.Service.Login(ctx, "wrong")
		require.NoError(t, err)
	}
	assert.Equal(t, models.StatusLocked, result.Status)
	assert.Equal(t, 15*time.Minute, result.LockoutRemaining)
}

// ============================================================================
// Resume (auto-login)
// ============================================================================

func TestAuthService_Resume_NothingRemembered(t *testing.T) {
	env := NewTestEnv(t)

	result, err := env.Service.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequiresLogin, result.Status)
	assert.Equal(t, 3, result.RemainingAttempts)
	assert.Zero(t, env.Source.FetchCalls.Load())
}

func TestAuthService_Resume_WithSession(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 7))

	_, err := env.Service.Login(ctx, goodCredential)
	require.NoError(t, err)
	before, _ := env.Sessions.Peek(ctx)

	// a restarted process over the same store
	env.Service.clearContext()

	result, err := env.Service.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAuthenticated, result.Status)
	assert.Equal(t, 1, result.TaskCount)

	after, ok := env.Sessions.Peek(ctx)
	require.True(t, ok)
	assert.Equal(t, before.Token, after.Token, "a valid session is kept")
	assert.Len(t, env.History.All(ctx), 1, "auto-login is not an attempt")
}

func TestAuthService_Resume_RememberedCredentialWithoutSession(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 7))
	require.NoError(t, env.Store.Set(ctx, store.KeyCredential, goodCredential))

	result, err := env.Service.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAuthenticated, result.Status)

	_, err = env.Sessions.Valid(ctx)
	assert.NoError(t, err, "a fresh session is issued")
	require.NoError(t, env.Service.Authorize(ctx))
}

// A remembered credential that stopped working is forgotten without a
// lockout strike.
func TestAuthService_Resume_FailureIsNotAStrike(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential("rotated", NewTestData(false, 1))
	require.NoError(t, env.Store.Set(ctx, store.KeyCredential, goodCredential))

	result, err := env.Service.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequiresLogin, result.Status)

	_, ok, _ := env.Store.Get(ctx, store.KeyCredential)
	assert.False(t, ok)

	snap, err := env.Lockout.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.FailedAttempts)
	assert.Empty(t, env.History.All(ctx))
}

func TestAuthService_Resume_FingerprintMismatch(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 1))

	_, err := env.Service.Login(ctx, goodCredential)
	require.NoError(t, err)
	env.Service.clearContext()
	calls := env.Source.FetchCalls.Load()

	// a session readable with our key but bound to another device
	blob, err := obfuscate.Encode(map[string]any{
		"v": 1, "token": "stolen", "passwordHash": "h", "fingerprint": "another-device",
		"createdAt": env.Clock.Now().UnixMilli(), "expiresAt": nil,
	}, env.Fingerprint.Key())
	require.NoError(t, err)
	require.NoError(t, env.Store.Set(ctx, store.KeySession, blob))

	result, err := env.Service.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequiresLogin, result.Status)
	assert.Equal(t, calls, env.Source.FetchCalls.Load(), "the credential is not replayed")

	_, ok, _ := env.Store.Get(ctx, store.KeySession)
	assert.False(t, ok)
	_, ok, _ = env.Store.Get(ctx, store.KeyCredential)
	assert.False(t, ok)
}

// ============================================================================
// Session-bound operations
// ============================================================================

func TestAuthService_Logout(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 1))

	_, err := env.Service.Login(ctx, goodCredential)
	require.NoError(t, err)

	require.NoError(t, env.Service.Logout(ctx))

	_, ok, _ := env.Store.Get(ctx, store.KeySession)
	assert.False(t, ok)
	_, ok, _ = env.Store.Get(ctx, store.KeyCredential)
	assert.False(t, ok)
	_, err = env.Service.Data()
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)

	require.NoError(t, env.Service.Logout(ctx), "logout is idempotent")
}

func TestAuthService_Authorize_SessionRemovedExternally(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 1))

	_, err := env.Service.Login(ctx, goodCredential)
	require.NoError(t, err)
	require.NoError(t, env.Store.Remove(ctx, store.KeySession))

	assert.ErrorIs(t, env.Service.Authorize(ctx), models.ErrNoSession)
	assert.ErrorIs(t, env.Service.Authorize(ctx), models.ErrNotAuthenticated)
}

func TestAuthService_Refresh(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 1))

	_, err := env.Service.Refresh(ctx)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)

	_, err = env.Service.Login(ctx, goodCredential)
	require.NoError(t, err)

	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 1, 2))
	data, err := env.Service.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, data.Tasks, 2)

	env.Source.FetchFunc = func(context.Context, string, string) (*models.ProtectedData, error) {
		return nil, models.ErrOracleUnavailable
	}
	_, err = env.Service.Refresh(ctx)
	assert.ErrorIs(t, err, models.ErrOracleUnavailable)
	assert.NoError(t, env.Service.Authorize(ctx), "refresh failures keep the session")

	snap, _ := env.Lockout.Snapshot(ctx)
	assert.Zero(t, snap.FailedAttempts)
}

func TestAuthService_SetHint_AdminOnly(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 5))

	_, err := env.Service.Login(ctx, goodCredential)
	require.NoError(t, err)

	err = env.Service.SetHint(ctx, 5, "hint")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestAuthService_AdminTaskUpdates(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(true, 5, 6))

	var sentCredential string
	env.Source.SetHintFunc = func(_ context.Context, credential string, _ int, _ string) error {
		sentCredential = credential
		return nil
	}

	_, err := env.Service.Login(ctx, goodCredential)
	require.NoError(t, err)

	require.NoError(t, env.Service.SetHint(ctx, 5, "substitute t = x^2"))
	require.NoError(t, env.Service.ChangeTaskStatus(ctx, 6, models.TaskStatusSolved))
	assert.Equal(t, goodCredential, sentCredential)

	data, err := env.Service.Data()
	require.NoError(t, err)
	assert.Equal(t, "substitute t = x^2", data.Tasks[0].Hint)
	assert.Equal(t, models.TaskStatusSolved, data.Tasks[1].Status)
}

func TestAuthService_ChangeTaskStatus_RemoteFailureLeavesData(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(true, 5))
	env.Source.ChangeTaskStatusFunc = func(context.Context, string, int, string) error {
		return errors.New("sheet locked")
	}

	_, err := env.Service.Login(ctx, goodCredential)
	require.NoError(t, err)

	assert.Error(t, env.Service.ChangeTaskStatus(ctx, 5, models.TaskStatusSolved))
	data, _ := env.Service.Data()
	assert.Equal(t, models.TaskStatusCurrentSeries, data.Tasks[0].Status)
}

// ============================================================================
// Security report and reset
// ============================================================================

func TestAuthService_SecurityStats(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 1))

	_, _ = env.Service.Login(ctx, "wrong")
	_, err := env.Service.Login(ctx, goodCredential)
	require.NoError(t, err)

	stats, err := env.Service.SecurityStats(ctx)
	require.NoError(t, err)
	assert.NotNil(t, stats.Session)
	assert.Equal(t, env.Fingerprint.Current(), stats.Fingerprint)
	assert.Equal(t, 3, stats.MaxFailedAttempts)
	assert.Equal(t, 2, stats.Attempts.Total)
	assert.Equal(t, 1, stats.Attempts.Failures)
	assert.False(t, stats.Locked)
}

func TestAuthService_ResetSecurityData(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnv(t)
	env.Source.FetchFunc = AcceptCredential(goodCredential, NewTestData(false, 1))

	for i := 0; i < 3; i++ {
		_, _ = env.Service.Login(ctx, "wrong")
	}

	err := env.Service.ResetSecurityData(ctx, "reset_matcenter_2025")
	assert.ErrorIs(t, err, models.ErrInvalidResetCode)
	locked, _ := env.Lockout.IsLockedOut(ctx)
	assert.True(t, locked)

	require.NoError(t, env.Service.ResetSecurityData(ctx, "reset_matcenter_2026"))

	locked, _ = env.Lockout.IsLockedOut(ctx)
	assert.False(t, locked)
	snap, _ := env.Lockout.Snapshot(ctx)
	assert.Zero(t, snap.LockoutCount)
	assert.Empty(t, env.History.All(ctx))
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "5:00", formatRemaining(5*time.Minute))
	assert.Equal(t, "0:01", formatRemaining(200*time.Millisecond))
	assert.Equal(t, "24:00:00", formatRemaining(24*time.Hour))
}
