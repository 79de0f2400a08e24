package models

import "time"

// LoginStatus is the outcome of a login submission or auto-login
type LoginStatus string

const (
	StatusAuthenticated LoginStatus = "AUTHENTICATED"
	StatusRejected      LoginStatus = "REJECTED"
	StatusLocked        LoginStatus = "LOCKED"
	StatusRequiresLogin LoginStatus = "REQUIRES_LOGIN"
)

// LoginResult describes what the UI should show after a login decision
type LoginResult struct {
	Status            LoginStatus
	RemainingAttempts int
	LockoutRemaining  time.Duration
	Suspicious        bool
	IsAdmin           bool
	TaskCount         int
	Message           string
}

// AuthStatus is the current state of the authentication context
type AuthStatus struct {
	Authenticated     bool
	IsAdmin           bool
	Locked            bool
	LockoutRemaining  time.Duration
	FailedAttempts    int
	RemainingAttempts int
}

// SecurityStats is the local security report: lockout counters, attempt
// history and the stored session
type SecurityStats struct {
	Session           *Session
	Fingerprint       string
	FailedAttempts    int
	MaxFailedAttempts int
	LockoutCount      int
	Locked            bool
	LockoutRemaining  time.Duration
	Attempts          AttemptSummary
}
