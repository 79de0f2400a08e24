package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/matcenter/internal/flashcard"
	"github.com/BradenHooton/matcenter/internal/models"
	"github.com/BradenHooton/matcenter/internal/services"
	pkghttp "github.com/BradenHooton/matcenter/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithURLParams attaches chi route parameters to a request
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface, TaskServiceInterface and
// SecurityServiceInterface for testing
type MockAuthService struct {
	LoginFunc             func(ctx context.Context, credential string) (*models.LoginResult, error)
	LogoutFunc            func(ctx context.Context) error
	StatusFunc            func(ctx context.Context) (*models.AuthStatus, error)
	DataFunc              func() (*models.ProtectedData, error)
	RefreshFunc           func(ctx context.Context) (*models.ProtectedData, error)
	ChangeTaskStatusFunc  func(ctx context.Context, taskNumber int, status string) error
	SetHintFunc           func(ctx context.Context, taskNumber int, hint string) error
	SecurityStatsFunc     func(ctx context.Context) (*models.SecurityStats, error)
	ResetSecurityDataFunc func(ctx context.Context, code string) error
}

func (m *MockAuthService) Login(ctx context.Context, credential string) (*models.LoginResult, error) {
	if m.LoginFunc == nil {
		return &models.LoginResult{Status: models.StatusRejected}, nil
	}
	return m.LoginFunc(ctx, credential)
}

func (m *MockAuthService) Logout(ctx context.Context) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx)
}

func (m *MockAuthService) Status(ctx context.Context) (*models.AuthStatus, error) {
	if m.StatusFunc == nil {
		return &models.AuthStatus{}, nil
	}
	return m.StatusFunc(ctx)
}

func (m *MockAuthService) Data() (*models.ProtectedData, error) {
	if m.DataFunc == nil {
		return nil, models.ErrNotAuthenticated
	}
	return m.DataFunc()
}

func (m *MockAuthService) Refresh(ctx context.Context) (*models.ProtectedData, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrNotAuthenticated
	}
	return m.RefreshFunc(ctx)
}

func (m *MockAuthService) ChangeTaskStatus(ctx context.Context, taskNumber int, status string) error {
	if m.ChangeTaskStatusFunc == nil {
		return nil
	}
	return m.ChangeTaskStatusFunc(ctx, taskNumber, status)
}

func (m *MockAuthService) SetHint(ctx context.Context, taskNumber int, hint string) error {
	if m.SetHintFunc == nil {
		return nil
	}
	return m.SetHintFunc(ctx, taskNumber, hint)
}

func (m *MockAuthService) SecurityStats(ctx context.Context) (*models.SecurityStats, error) {
	if m.SecurityStatsFunc == nil {
		return &models.SecurityStats{}, nil
	}
	return m.SecurityStatsFunc(ctx)
}

func (m *MockAuthService) ResetSecurityData(ctx context.Context, code string) error {
	if m.ResetSecurityDataFunc == nil {
		return models.ErrInvalidResetCode
	}
	return m.ResetSecurityDataFunc(ctx, code)
}

// MockFlashcardService implements FlashcardServiceInterface for testing
type MockFlashcardService struct {
	TopicsFunc func() []flashcard.TopicInfo
	StartFunc  func(ctx context.Context, topicIDs []string) (*services.FlashcardSessionView, error)
	StepFunc   func(op, id string) (*services.FlashcardSessionView, error)
	FinishFunc func(ctx context.Context, id string) (*flashcard.Summary, error)
}

func (m *MockFlashcardService) Topics() []flashcard.TopicInfo {
	if m.TopicsFunc == nil {
		return []flashcard.TopicInfo{}
	}
	return m.TopicsFunc()
}

func (m *MockFlashcardService) Start(ctx context.Context, topicIDs []string) (*services.FlashcardSessionView, error) {
	if m.StartFunc == nil {
		return nil, models.ErrNoDefinitions
	}
	return m.StartFunc(ctx, topicIDs)
}

func (m *MockFlashcardService) step(op, id string) (*services.FlashcardSessionView, error) {
	if m.StepFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.StepFunc(op, id)
}

func (m *MockFlashcardService) Current(id string) (*services.FlashcardSessionView, error) {
	return m.step("current", id)
}

func (m *MockFlashcardService) Reveal(id string) (*services.FlashcardSessionView, error) {
	return m.step("reveal", id)
}

func (m *MockFlashcardService) Remember(id string) (*services.FlashcardSessionView, error) {
	return m.step("remember", id)
}

func (m *MockFlashcardService) Forget(id string) (*services.FlashcardSessionView, error) {
	return m.step("forget", id)
}

func (m *MockFlashcardService) Finish(ctx context.Context, id string) (*flashcard.Summary, error) {
	if m.FinishFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.FinishFunc(ctx, id)
}
