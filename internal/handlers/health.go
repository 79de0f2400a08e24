package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/matcenter/pkg/http"
)

// HealthChecker reports whether a backing dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves the liveness probe
type HealthHandler struct {
	checker HealthChecker
	timeout time.Duration
}

// NewHealthHandler creates a HealthHandler; a nil checker always reports ok
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker, timeout: 2 * time.Second}
}

// Health reports store reachability
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		if err := h.checker.HealthCheck(ctx); err != nil {
			pkghttp.WriteServiceUnavailable(w, "store unavailable")
			return
		}
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
