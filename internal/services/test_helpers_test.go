package services

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/matcenter/internal/clock"
	"github.com/BradenHooton/matcenter/internal/fingerprint"
	"github.com/BradenHooton/matcenter/internal/history"
	"github.com/BradenHooton/matcenter/internal/lockout"
	"github.com/BradenHooton/matcenter/internal/models"
	"github.com/BradenHooton/matcenter/internal/session"
	"github.com/BradenHooton/matcenter/internal/store"
	pkglogger "github.com/BradenHooton/matcenter/pkg/logger"
)

// MockDataSource implements DataSource for testing
type MockDataSource struct {
	FetchFunc            func(ctx context.Context, credential, clientID string) (*models.ProtectedData, error)
	ChangeTaskStatusFunc func(ctx context.Context, credential string, taskNumber int, status string) error
	SetHintFunc          func(ctx context.Context, credential string, taskNumber int, hint string) error

	FetchCalls atomic.Int32
}

func (m *MockDataSource) Fetch(ctx context.Context, credential, clientID string) (*models.ProtectedData, error) {
	m.FetchCalls.Add(1)
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, credential, clientID)
	}
	return nil, models.ErrOracleUnavailable
}

func (m *MockDataSource) ChangeTaskStatus(ctx context.Context, credential string, taskNumber int, status string) error {
	if m.ChangeTaskStatusFunc != nil {
		return m.ChangeTaskStatusFunc(ctx, credential, taskNumber, status)
	}
	return nil
}

func (m *MockDataSource) SetHint(ctx context.Context, credential string, taskNumber int, hint string) error {
	if m.SetHintFunc != nil {
		return m.SetHintFunc(ctx, credential, taskNumber, hint)
	}
	return nil
}

// AcceptCredential returns a FetchFunc that only accepts want
func AcceptCredential(want string, data *models.ProtectedData) func(context.Context, string, string) (*models.ProtectedData, error) {
	return func(_ context.Context, credential, _ string) (*models.ProtectedData, error) {
		if credential != want {
			return nil, models.ErrInvalidCredential
		}
		return data, nil
	}
}

// NewTestData returns protected data with the given task numbers
func NewTestData(isAdmin bool, numbers ...int) *models.ProtectedData {
	data := &models.ProtectedData{IsAdmin: isAdmin, Count: len(numbers)}
	for _, n := range numbers {
		n := n
		data.Tasks = append(data.Tasks, models.Task{Number: &n, Status: models.TaskStatusCurrentSeries})
	}
	return data
}

// TestEnv wires an AuthService over an in-memory store and a fake clock
type TestEnv struct {
	Store       *store.Memory
	Clock       *clock.Fake
	Source      *MockDataSource
	Fingerprint *fingerprint.Generator
	Lockout     *lockout.Engine
	History     *history.Recorder
	Sessions    *session.Manager
	Service     *AuthService
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEnvironment() fingerprint.Environment {
	return fingerprint.Environment{
		UserAgent:      "matcenter-test",
		Language:       "ru-RU",
		ScreenWidth:    1920,
		ScreenHeight:   1080,
		TimezoneOffset: -180,
		Platform:       "linux",
	}
}

// NewTestEnv builds the service with the default lockout policy unless one is given
func NewTestEnv(t *testing.T, policy ...lockout.Policy) *TestEnv {
	t.Helper()

	p := lockout.DefaultPolicy()
	if len(policy) > 0 {
		p = policy[0]
	}

	logger := testLogger()
	env := &TestEnv{
		Store:  store.NewMemory(),
		Clock:  clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Source: &MockDataSource{},
	}
	env.Fingerprint = fingerprint.NewGenerator(env.Store, testEnvironment(), logger)
	env.Lockout = lockout.NewEngine(env.Store, env.Clock, p, logger)
	env.History = history.NewRecorder(env.Store, env.Fingerprint, env.Clock, logger)
	env.Sessions = session.NewManager(env.Store, env.Fingerprint, env.Clock, 0, logger)
	env.Service = NewAuthService(AuthServiceDeps{
		Store:       env.Store,
		Source:      env.Source,
		Fingerprint: env.Fingerprint,
		Lockout:     env.Lockout,
		History:     env.History,
		Sessions:    env.Sessions,
		Clock:       env.Clock,
		Logger:      logger,
		AuditLogger: pkglogger.NewAuditLogger(logger),
	})
	return env
}
