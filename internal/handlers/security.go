package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/BradenHooton/matcenter/internal/models"
	pkghttp "github.com/BradenHooton/matcenter/pkg/http"
	pkglogger "github.com/BradenHooton/matcenter/pkg/logger"
)

// SecurityServiceInterface exposes the local security report and reset
type SecurityServiceInterface interface {
	SecurityStats(ctx context.Context) (*models.SecurityStats, error)
	ResetSecurityData(ctx context.Context, code string) error
}

// SecurityHandler serves the security report
type SecurityHandler struct {
	service SecurityServiceInterface
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(service SecurityServiceInterface) *SecurityHandler {
	return &SecurityHandler{service: service}
}

// ResetRequest carries the reset code
type ResetRequest struct {
	Code string `json:"code" validate:"required,max=128"`
}

// SessionInfo is the stored session without its token
type SessionInfo struct {
	Fingerprint string     `json:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// SecurityStatsResponse is the security report
type SecurityStatsResponse struct {
	Fingerprint             string                `json:"fingerprint"`
	FailedAttempts          int                   `json:"failed_attempts"`
	MaxFailedAttempts       int                   `json:"max_failed_attempts"`
	LockoutCount            int                   `json:"lockout_count"`
	Locked                  bool                  `json:"locked"`
	LockoutRemainingSeconds int                   `json:"lockout_remaining_seconds"`
	Attempts                models.AttemptSummary `json:"attempts"`
	Session                 *SessionInfo          `json:"session"`
}

// Stats returns the security report
// @Summary Security report
// @Produce json
// @Success 200 {object} SecurityStatsResponse
// @Router /security/stats [get]
func (h *SecurityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.SecurityStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := SecurityStatsResponse{
		Fingerprint:             pkglogger.ShortFingerprint(stats.Fingerprint),
		FailedAttempts:          stats.FailedAttempts,
		MaxFailedAttempts:       stats.MaxFailedAttempts,
		LockoutCount:            stats.LockoutCount,
		Locked:                  stats.Locked,
		LockoutRemainingSeconds: seconds(stats.LockoutRemaining),
		Attempts:                stats.Attempts,
	}
	resp.Attempts.Recent = make([]models.AttemptRecord, len(stats.Attempts.Recent))
	for i, rec := range stats.Attempts.Recent {
		rec.Fingerprint = pkglogger.ShortFingerprint(rec.Fingerprint)
		resp.Attempts.Recent[i] = rec
	}
	if s := stats.Session; s != nil {
		info := &SessionInfo{
			Fingerprint: pkglogger.ShortFingerprint(s.Fingerprint),
			CreatedAt:   s.CreatedAt,
		}
		if !s.Unbounded() {
			exp := s.ExpiresAt
			info.ExpiresAt = &exp
		}
		resp.Session = info
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Reset wipes lockout state, attempt history and the session
// @Summary Reset local security data
// @Accept json
// @Param request body ResetRequest true "Reset code"
// @Success 200 {object} map[string]string
// @Failure 403 {object} pkghttp.ErrorResponse
// @Router /security/reset [post]
func (h *SecurityHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ResetSecurityData(r.Context(), req.Code); err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Security data reset"})
}
