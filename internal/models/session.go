package models

import "time"

// Session is a locally persisted proof of a prior successful login.
// A zero ExpiresAt means the session is valid until explicit logout.
type Session struct {
	Token          string
	CredentialHash string
	Fingerprint    string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Unbounded reports whether the session never expires on its own
func (s *Session) Unbounded() bool {
	return s.ExpiresAt.IsZero()
}

// ExpiredAt reports whether the session is past its expiry at the given time
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.Unbounded() && s.ExpiresAt.Before(now)
}

// LockoutSnapshot is a read-only view of the lockout counters
type LockoutSnapshot struct {
	FailedAttempts int
	LockedUntil    time.Time
	LockoutCount   int
	LastLockout    time.Time
}
