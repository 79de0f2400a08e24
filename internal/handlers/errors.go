package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/BradenHooton/matcenter/internal/models"
	pkghttp "github.com/BradenHooton/matcenter/pkg/http"
)

// writeServiceError maps service sentinels to HTTP responses. Unknown
// errors become a generic 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful can be written
	case errors.Is(err, context.DeadlineExceeded):
		pkghttp.WriteServiceUnavailable(w, "Request timed out")
	case errors.Is(err, models.ErrBadRequest),
		errors.Is(err, models.ErrNoTopicsSelected),
		errors.Is(err, models.ErrNoDefinitions):
		pkghttp.WriteBadRequest(w, userMessage(err))
	case errors.Is(err, models.ErrNotAuthenticated),
		errors.Is(err, models.ErrNoSession),
		errors.Is(err, models.ErrInvalidCredential):
		pkghttp.WriteUnauthorized(w, "Authentication required")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Administrator access required")
	case errors.Is(err, models.ErrInvalidResetCode):
		pkghttp.WriteForbidden(w, "Invalid reset code")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Not found")
	case errors.Is(err, models.ErrLoginInProgress):
		pkghttp.WriteConflict(w, "A login request is already in progress")
	case errors.Is(err, models.ErrCardNotRevealed),
		errors.Is(err, models.ErrSessionFinished):
		pkghttp.WriteConflict(w, userMessage(err))
	case errors.Is(err, models.ErrOracleUnavailable),
		errors.Is(err, models.ErrMalformedResponse):
		pkghttp.WriteBadGateway(w, "The task service is not responding, try again later")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// userMessage unwraps to the outermost sentinel text the client may see
func userMessage(err error) string {
	for _, sentinel := range []error{
		models.ErrNoTopicsSelected,
		models.ErrNoDefinitions,
		models.ErrCardNotRevealed,
		models.ErrSessionFinished,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
