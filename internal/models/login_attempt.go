package models

import "time"

// AttemptRecord is one entry of the local login attempt history
type AttemptRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Success     bool      `json:"success"`
	Fingerprint string    `json:"fingerprint"`
}

// AttemptSummary aggregates the attempt history for the security report
type AttemptSummary struct {
	Total      int             `json:"total"`
	Successes  int             `json:"successes"`
	Failures   int             `json:"failures"`
	Recent     []AttemptRecord `json:"recent"`
	Suspicious bool            `json:"suspicious"`
}
