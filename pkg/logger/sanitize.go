package logger

import (
	"log/slog"
	"strings"
)

// ShortFingerprint truncates a device fingerprint for logging (e.g. "3f9a1c2e...")
func ShortFingerprint(fp string) string {
	if fp == "" {
		return "[none]"
	}
	if len(fp) <= 8 {
		return fp
	}
	return fp[:8] + "..."
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"password",
		"credential",
		"token",
		"secret",
		"code",
		"auth",
		"clientid",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
