package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication errors
	ErrLockedOut          = errors.New("too many failed attempts, login is temporarily locked")
	ErrInvalidCredential  = errors.New("credential rejected by data source")
	ErrLoginInProgress    = errors.New("a login request is already in flight")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidResetCode   = errors.New("invalid reset code")
	ErrOracleUnavailable  = errors.New("data source unavailable")
	ErrMalformedResponse  = errors.New("malformed data source response")

	// Session errors. Expired and mismatched sessions are both "no session"
	// to callers that only check errors.Is(err, ErrNoSession).
	ErrNoSession                  = errors.New("no valid session")
	ErrSessionExpired             = fmt.Errorf("session expired: %w", ErrNoSession)
	ErrSessionFingerprintMismatch = fmt.Errorf("session bound to another device: %w", ErrNoSession)

	// Knowledge check errors
	ErrNoTopicsSelected   = errors.New("select at least one topic")
	ErrNoDefinitions      = errors.New("selected topics contain no definitions")
	ErrCardNotRevealed    = errors.New("card must be revealed first")
	ErrSessionFinished    = errors.New("knowledge check already finished")
)
