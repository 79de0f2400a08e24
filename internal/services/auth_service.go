package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/matcenter/internal/auth"
	"github.com/BradenHooton/matcenter/internal/clock"
	"github.com/BradenHooton/matcenter/internal/history"
	"github.com/BradenHooton/matcenter/internal/lockout"
	"github.com/BradenHooton/matcenter/internal/metrics"
	"github.com/BradenHooton/matcenter/internal/models"
	"github.com/BradenHooton/matcenter/internal/session"
	"github.com/BradenHooton/matcenter/internal/store"
	pkgauth "github.com/BradenHooton/matcenter/pkg/auth"
	pkglogger "github.com/BradenHooton/matcenter/pkg/logger"
)

// DataSource is the remote credential oracle: a successful Fetch proves the
// credential is valid.
type DataSource interface {
	Fetch(ctx context.Context, credential, clientID string) (*models.ProtectedData, error)
	ChangeTaskStatus(ctx context.Context, credential string, taskNumber int, status string) error
	SetHint(ctx context.Context, credential string, taskNumber int, hint string) error
}

// DeviceFingerprint is satisfied by *fingerprint.Generator
type DeviceFingerprint interface {
	Get(ctx context.Context) string
	Current() string
	ClientID() string
}

const (
	modeSubmit = "submit"
	modeResume = "resume"

	resetCodePrefix = "reset_matcenter_"
)

// authContext is the in-memory state of the single client context
type authContext struct {
	authenticated bool
	credential    string
	isAdmin       bool
	data          *models.ProtectedData
}

// AuthService orchestrates login, auto-login and logout on top of the
// lockout engine, attempt history and session manager. It owns no persisted
// state of its own except the remembered credential.
type AuthService struct {
	store       store.Store
	source      DataSource
	fp          DeviceFingerprint
	lockout     *lockout.Engine
	history     *history.Recorder
	sessions    *session.Manager
	clock       clock.Clock
	timing      *auth.TimingDelay
	resetHash   string
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	inFlight atomic.Bool

	mu  sync.RWMutex
	ctx authContext
}

// AuthServiceDeps groups the collaborators of AuthService
type AuthServiceDeps struct {
	Store         store.Store
	Source        DataSource
	Fingerprint   DeviceFingerprint
	Lockout       *lockout.Engine
	History       *history.Recorder
	Sessions      *session.Manager
	Clock         clock.Clock
	Timing        *auth.TimingDelay // nil disables the rejection delay
	ResetCodeHash string            // bcrypt; empty uses the yearly code
	Logger        *slog.Logger
	AuditLogger   *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(deps AuthServiceDeps) *AuthService {
	return &AuthService{
		store:       deps.Store,
		source:      deps.Source,
		fp:          deps.Fingerprint,
		lockout:     deps.Lockout,
		history:     deps.History,
		sessions:    deps.Sessions,
		clock:       deps.Clock,
		timing:      deps.Timing,
		resetHash:   deps.ResetCodeHash,
		logger:      deps.Logger,
		auditLogger: deps.AuditLogger,
	}
}

// Login runs the explicit submission protocol for credential. Only one
// login may be outstanding at a time.
func (s *AuthService) Login(ctx context.Context, credential string) (*models.LoginResult, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, fmt.Errorf("%w: credential is required", models.ErrBadRequest)
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, models.ErrLoginInProgress
	}
	defer s.inFlight.Store(false)

	fp := s.fp.Get(ctx)

	locked, err := s.lockout.IsLockedOut(ctx)
	if err != nil {
		s.logger.Error("failed to read lockout state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if locked {
		remaining := s.lockout.RemainingLockout(ctx)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_blocked",
			Fingerprint:   fp,
			FailureReason: "locked_out",
		})
		return s.finish(modeSubmit, &models.LoginResult{
			Status:           models.StatusLocked,
			LockoutRemaining: remaining,
			Message:          lockedMessage(remaining),
		}), nil
	}

	data, err := s.source.Fetch(ctx, credential, s.fp.ClientID())
	if err != nil {
		// An abandoned request is not an answer from the oracle
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return s.rejectLogin(ctx, fp, err)
	}

	if _, err := s.sessions.Create(ctx, pkgauth.HashCredential(credential)); err != nil {
		s.logger.Error("failed to create session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if err := s.store.Set(ctx, store.KeyCredential, credential); err != nil {
		s.logger.Warn("failed to remember credential", slog.Any("error", err))
	}
	if err := s.history.Record(ctx, true, fp); err != nil {
		s.logger.Warn("failed to record attempt", slog.Any("error", err))
	}
	if err := s.lockout.ResetOnSuccess(ctx); err != nil {
		s.logger.Warn("failed to reset lockout counters", slog.Any("error", err))
	}

	s.setAuthenticated(credential, data)

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:   "login_success",
		Fingerprint: fp,
		Success:     true,
		Metadata:    map[string]string{"is_admin": strconv.FormatBool(data.IsAdmin)},
	})

	return s.finish(modeSubmit, &models.LoginResult{
		Status:    models.StatusAuthenticated,
		IsAdmin:   data.IsAdmin,
		TaskCount: len(data.Tasks),
		Message:   "Logged in",
	}), nil
}

// rejectLogin records a counted failure and decides between REJECTED and LOCKED
func (s *AuthService) rejectLogin(ctx context.Context, fp string, cause error) (*models.LoginResult, error) {
	if err := s.history.Record(ctx, false, fp); err != nil {
		s.logger.Warn("failed to record attempt", slog.Any("error", err))
	}

	failed, err := s.lockout.RecordFailure(ctx)
	if err != nil {
		s.logger.Error("failed to record failure", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	suspicious := s.history.DetectSuspicious(ctx)
	if suspicious {
		metrics.SuspiciousAttempts.Inc()
		s.auditLogger.LogSecurityEvent(pkglogger.AuditEvent{
			EventType:   "suspicious_activity",
			Fingerprint: fp,
		})
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		Fingerprint:   fp,
		FailureReason: failureReason(cause),
		Metadata:      map[string]string{"failed_attempts": strconv.Itoa(failed)},
	})

	result := &models.LoginResult{Suspicious: suspicious}

	if s.lockout.ThresholdReached(failed) {
		duration, err := s.lockout.StartLockout(ctx)
		if err != nil {
			s.logger.Error("failed to start lockout", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if snap, err := s.lockout.Snapshot(ctx); err == nil {
			metrics.LockoutsStarted.WithLabelValues(strconv.Itoa(snap.LockoutCount)).Inc()
		}
		result.Status = models.StatusLocked
		result.LockoutRemaining = duration
		result.Message = lockedMessage(duration)
	} else {
		result.Status = models.StatusRejected
		result.RemainingAttempts = s.lockout.RemainingAttempts(ctx)
		result.Message = fmt.Sprintf("Invalid credential. Attempts remaining: %d", result.RemainingAttempts)
	}
	if suspicious {
		result.Message = "Suspicious activity detected! " + result.Message
	}

	s.timing.Wait(ctx, false)
	return s.finish(modeSubmit, result), nil
}

// Resume is the auto-login run when the client starts: any stored session is
// validated first, then the remembered credential is replayed against the
// data source. A failed replay clears the credential and session but is not
// a counted failure.
func (s *AuthService) Resume(ctx context.Context) (*models.LoginResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, models.ErrLoginInProgress
	}
	defer s.inFlight.Store(false)

	fp := s.fp.Get(ctx)

	_, sessErr := s.sessions.Valid(ctx)
	if sessErr != nil {
		s.noteInvalidSession(fp, sessErr)
	}
	// A session carried over from another device must not be revived by
	// replaying the credential stored next to it.
	if errors.Is(sessErr, models.ErrSessionFingerprintMismatch) {
		if err := s.store.Remove(ctx, store.KeyCredential); err != nil {
			s.logger.Warn("failed to forget credential", slog.Any("error", err))
		}
		s.clearContext()
		return s.finish(modeResume, s.requiresLogin(ctx)), nil
	}

	credential, ok, err := s.store.Get(ctx, store.KeyCredential)
	if err != nil {
		s.logger.Error("failed to read remembered credential", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !ok || credential == "" {
		return s.finish(modeResume, s.requiresLogin(ctx)), nil
	}

	data, err := s.source.Fetch(ctx, credential, s.fp.ClientID())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("auto-login failed, credential must be re-entered", slog.String("reason", failureReason(err)))
		if err := s.store.Remove(ctx, store.KeyCredential); err != nil {
			s.logger.Warn("failed to forget credential", slog.Any("error", err))
		}
		if err := s.sessions.Clear(ctx); err != nil {
			s.logger.Warn("failed to clear session", slog.Any("error", err))
		}
		s.clearContext()
		return s.finish(modeResume, s.requiresLogin(ctx)), nil
	}

	if sessErr != nil {
		if _, err := s.sessions.Create(ctx, pkgauth.HashCredential(credential)); err != nil {
			s.logger.Error("failed to create session", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	s.setAuthenticated(credential, data)
	s.auditLogger.LogAccountAction("auto_login", fp, map[string]string{
		"is_admin": strconv.FormatBool(data.IsAdmin),
	})

	return s.finish(modeResume, &models.LoginResult{
		Status:    models.StatusAuthenticated,
		IsAdmin:   data.IsAdmin,
		TaskCount: len(data.Tasks),
		Message:   "Session restored",
	}), nil
}

// Logout clears the session, the remembered credential and loaded data
func (s *AuthService) Logout(ctx context.Context) error {
	var errs []error
	if err := s.sessions.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Remove(ctx, store.KeyCredential); err != nil {
		errs = append(errs, fmt.Errorf("forget credential: %w", err))
	}
	s.clearContext()

	s.auditLogger.LogAccountAction("logout", s.fp.Current(), nil)

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("logout left stored state behind", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// Authorize reports whether the context is authenticated with a valid
// stored session. An invalidated session also drops the in-memory state.
func (s *AuthService) Authorize(ctx context.Context) error {
	s.mu.RLock()
	authenticated := s.ctx.authenticated
	s.mu.RUnlock()

	if !authenticated {
		return models.ErrNotAuthenticated
	}

	if _, err := s.sessions.Valid(ctx); err != nil {
		s.noteInvalidSession(s.fp.Current(), err)
		s.clearContext()
		return err
	}
	return nil
}

// IsAdmin reports the admin flag returned by the data source
func (s *AuthService) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx.authenticated && s.ctx.isAdmin
}

// Status reports the authentication and lockout state, applying the lazy
// unlock transition.
func (s *AuthService) Status(ctx context.Context) (*models.AuthStatus, error) {
	locked, err := s.lockout.IsLockedOut(ctx)
	if err != nil {
		s.logger.Error("failed to read lockout state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	snap, err := s.lockout.Snapshot(ctx)
	if err != nil {
		s.logger.Error("failed to read lockout state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return &models.AuthStatus{
		Authenticated:     s.ctx.authenticated,
		IsAdmin:           s.ctx.authenticated && s.ctx.isAdmin,
		Locked:            locked,
		LockoutRemaining:  s.lockout.RemainingLockout(ctx),
		FailedAttempts:    snap.FailedAttempts,
		RemainingAttempts: s.lockout.RemainingAttempts(ctx),
	}, nil
}

// Data returns the loaded protected data
func (s *AuthService) Data() (*models.ProtectedData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ctx.authenticated || s.ctx.data == nil {
		return nil, models.ErrNotAuthenticated
	}
	data := *s.ctx.data
	data.Tasks = append([]models.Task(nil), s.ctx.data.Tasks...)
	return &data, nil
}

// Refresh reloads protected data with the current credential. Failures are
// returned but never end the session.
func (s *AuthService) Refresh(ctx context.Context) (*models.ProtectedData, error) {
	credential, err := s.currentCredential()
	if err != nil {
		return nil, err
	}

	data, err := s.source.Fetch(ctx, credential, s.fp.ClientID())
	if err != nil {
		s.logger.Warn("refresh failed", slog.String("reason", failureReason(err)))
		return nil, err
	}

	s.mu.Lock()
	if s.ctx.authenticated && s.ctx.credential == credential {
		s.ctx.data = data
		s.ctx.isAdmin = data.IsAdmin
	}
	s.mu.Unlock()

	return s.Data()
}

// ChangeTaskStatus updates a task status remotely and in the loaded data
func (s *AuthService) ChangeTaskStatus(ctx context.Context, taskNumber int, status string) error {
	credential, err := s.adminCredential()
	if err != nil {
		return err
	}
	if err := s.source.ChangeTaskStatus(ctx, credential, taskNumber, status); err != nil {
		return err
	}

	s.updateTask(taskNumber, func(t *models.Task) { t.Status = status })
	s.auditLogger.LogAccountAction("task_status_changed", s.fp.Current(), map[string]string{
		"task_number": strconv.Itoa(taskNumber),
		"status":      status,
	})
	return nil
}

// SetHint stores a task hint remotely and in the loaded data
func (s *AuthService) SetHint(ctx context.Context, taskNumber int, hint string) error {
	credential, err := s.adminCredential()
	if err != nil {
		return err
	}
	if err := s.source.SetHint(ctx, credential, taskNumber, hint); err != nil {
		return err
	}

	s.updateTask(taskNumber, func(t *models.Task) { t.Hint = hint })
	s.auditLogger.LogAccountAction("task_hint_set", s.fp.Current(), map[string]string{
		"task_number": strconv.Itoa(taskNumber),
	})
	return nil
}

// SecurityStats builds the security report
func (s *AuthService) SecurityStats(ctx context.Context) (*models.SecurityStats, error) {
	locked, err := s.lockout.IsLockedOut(ctx)
	if err != nil {
		s.logger.Error("failed to read lockout state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	snap, err := s.lockout.Snapshot(ctx)
	if err != nil {
		s.logger.Error("failed to read lockout state", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	stats := &models.SecurityStats{
		Fingerprint:       s.fp.Current(),
		FailedAttempts:    snap.FailedAttempts,
		MaxFailedAttempts: s.lockout.Policy().MaxFailedAttempts,
		LockoutCount:      snap.LockoutCount,
		Locked:            locked,
		LockoutRemaining:  s.lockout.RemainingLockout(ctx),
		Attempts:          s.history.Summary(ctx),
	}
	if sess, ok := s.sessions.Peek(ctx); ok {
		stats.Session = sess
	}
	return stats, nil
}

// ResetSecurityData wipes lockout state, attempt history and the session
// after checking code. The remembered credential is kept so a later Resume
// can restore access.
func (s *AuthService) ResetSecurityData(ctx context.Context, code string) error {
	if !s.validResetCode(code) {
		s.auditLogger.LogSecurityEvent(pkglogger.AuditEvent{
			EventType:     "security_reset_denied",
			Fingerprint:   s.fp.Current(),
			FailureReason: "invalid_reset_code",
		})
		return models.ErrInvalidResetCode
	}

	if err := s.lockout.Clear(ctx); err != nil {
		s.logger.Error("failed to clear lockout state", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if err := s.history.Clear(ctx); err != nil {
		s.logger.Error("failed to clear attempt history", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if err := s.sessions.Clear(ctx); err != nil {
		s.logger.Error("failed to clear session", slog.Any("error", err))
		return models.ErrInternalServer
	}
	s.clearContext()

	s.auditLogger.LogAccountAction("security_reset", s.fp.Current(), nil)
	return nil
}

func (s *AuthService) validResetCode(code string) bool {
	if code == "" {
		return false
	}
	if s.resetHash != "" {
		return pkgauth.CompareResetCode(s.resetHash, code) == nil
	}
	return code == resetCodePrefix+strconv.Itoa(s.clock.Now().Year())
}

func (s *AuthService) requiresLogin(ctx context.Context) *models.LoginResult {
	result := &models.LoginResult{
		Status:            models.StatusRequiresLogin,
		RemainingAttempts: s.lockout.RemainingAttempts(ctx),
		Message:           "Please enter the access credential",
	}
	if locked, err := s.lockout.IsLockedOut(ctx); err == nil && locked {
		result.LockoutRemaining = s.lockout.RemainingLockout(ctx)
		result.Message = lockedMessage(result.LockoutRemaining)
	}
	return result
}

func (s *AuthService) noteInvalidSession(fp string, err error) {
	switch {
	case errors.Is(err, models.ErrSessionFingerprintMismatch):
		metrics.SessionsInvalidated.WithLabelValues("fingerprint_mismatch").Inc()
		s.auditLogger.LogSecurityEvent(pkglogger.AuditEvent{
			EventType:     "session_fingerprint_mismatch",
			Fingerprint:   fp,
			FailureReason: "possible_token_theft",
		})
	case errors.Is(err, models.ErrSessionExpired):
		metrics.SessionsInvalidated.WithLabelValues("expired").Inc()
		s.logger.Info("stored session expired")
	}
}

func (s *AuthService) finish(mode string, result *models.LoginResult) *models.LoginResult {
	metrics.LoginOutcomes.WithLabelValues(mode, string(result.Status)).Inc()
	return result
}

func (s *AuthService) setAuthenticated(credential string, data *models.ProtectedData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = authContext{
		authenticated: true,
		credential:    credential,
		isAdmin:       data.IsAdmin,
		data:          data,
	}
}

func (s *AuthService) clearContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = authContext{}
}

func (s *AuthService) currentCredential() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ctx.authenticated {
		return "", models.ErrNotAuthenticated
	}
	return s.ctx.credential, nil
}

func (s *AuthService) adminCredential() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ctx.authenticated {
		return "", models.ErrNotAuthenticated
	}
	if !s.ctx.isAdmin {
		return "", models.ErrForbidden
	}
	return s.ctx.credential, nil
}

func (s *AuthService) updateTask(taskNumber int, apply func(*models.Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.data == nil {
		return
	}
	tasks := append([]models.Task(nil), s.ctx.data.Tasks...)
	for i := range tasks {
		if tasks[i].Number != nil && *tasks[i].Number == taskNumber {
			apply(&tasks[i])
		}
	}
	data := *s.ctx.data
	data.Tasks = tasks
	s.ctx.data = &data
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, models.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, models.ErrOracleUnavailable):
		return "oracle_unavailable"
	default:
		return "unknown"
	}
}

func lockedMessage(remaining time.Duration) string {
	return fmt.Sprintf("Too many failed attempts. Try again in %s", formatRemaining(remaining))
}

// formatRemaining renders a countdown as m:ss, or h:mm:ss past an hour
func formatRemaining(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	h, m, sec := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
