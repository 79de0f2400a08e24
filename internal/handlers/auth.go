package handlers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/matcenter/internal/models"
	pkghttp "github.com/BradenHooton/matcenter/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, credential string) (*models.LoginResult, error)
	Logout(ctx context.Context) error
	Status(ctx context.Context) (*models.AuthStatus, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Credential string `json:"credential" validate:"required,max=256"`
}

// LoginResponse is the outcome of a login decision
type LoginResponse struct {
	Status                  models.LoginStatus `json:"status"`
	Message                 string             `json:"message"`
	RemainingAttempts       int                `json:"remaining_attempts"`
	LockoutRemainingSeconds int                `json:"lockout_remaining_seconds,omitempty"`
	Suspicious              bool               `json:"suspicious,omitempty"`
	IsAdmin                 bool               `json:"is_admin"`
	TaskCount               int                `json:"task_count"`
}

// StatusResponse describes the authentication and lockout state
type StatusResponse struct {
	Authenticated           bool `json:"authenticated"`
	IsAdmin                 bool `json:"is_admin"`
	Locked                  bool `json:"locked"`
	LockoutRemainingSeconds int  `json:"lockout_remaining_seconds"`
	FailedAttempts          int  `json:"failed_attempts"`
	RemainingAttempts       int  `json:"remaining_attempts"`
}

// NewLoginResponse converts a service result to its wire form
func NewLoginResponse(result *models.LoginResult) LoginResponse {
	return LoginResponse{
		Status:                  result.Status,
		Message:                 result.Message,
		RemainingAttempts:       result.RemainingAttempts,
		LockoutRemainingSeconds: seconds(result.LockoutRemaining),
		Suspicious:              result.Suspicious,
		IsAdmin:                 result.IsAdmin,
		TaskCount:               result.TaskCount,
	}
}

// Login handles a credential submission
// @Summary Submit the access credential
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} LoginResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Failure 423 {object} LoginResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), req.Credential)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	switch result.Status {
	case models.StatusRejected:
		status = http.StatusUnauthorized
	case models.StatusLocked:
		status = http.StatusLocked
		if s := seconds(result.LockoutRemaining); s > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(s))
		}
	}

	pkghttp.WriteJSON(w, status, NewLoginResponse(result))
}

// Logout clears the session and the remembered credential
// @Summary Logout
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Status reports whether the context is authenticated or locked out
// @Summary Authentication status
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /auth/status [get]
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Status(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, StatusResponse{
		Authenticated:           st.Authenticated,
		IsAdmin:                 st.IsAdmin,
		Locked:                  st.Locked,
		LockoutRemainingSeconds: seconds(st.LockoutRemaining),
		FailedAttempts:          st.FailedAttempts,
		RemainingAttempts:       st.RemainingAttempts,
	})
}

// seconds rounds a duration up to whole seconds
func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
