// Package auth holds the HTTP gates in front of protected routes and the
// rejection delay used by the login flow.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/BradenHooton/matcenter/internal/models"
	pkghttp "github.com/BradenHooton/matcenter/pkg/http"
)

// SessionAuthorizer decides whether the local context holds a valid session
type SessionAuthorizer interface {
	Authorize(ctx context.Context) error
	IsAdmin() bool
}

// RequireSession rejects requests unless the context is authenticated and
// its stored session is still valid.
func RequireSession(a SessionAuthorizer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := a.Authorize(r.Context()); err != nil {
				switch {
				case errors.Is(err, models.ErrSessionExpired):
					pkghttp.WriteUnauthorized(w, "session expired, please log in again")
				case errors.Is(err, models.ErrSessionFingerprintMismatch):
					pkghttp.WriteUnauthorized(w, "session is bound to another device")
				case errors.Is(err, models.ErrNotAuthenticated), errors.Is(err, models.ErrNoSession):
					pkghttp.WriteUnauthorized(w, "authentication required")
				default:
					pkghttp.WriteInternalError(w, "internal server error")
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin must be used after RequireSession
func RequireAdmin(a SessionAuthorizer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.IsAdmin() {
				pkghttp.WriteForbidden(w, "forbidden: insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
