package logger

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// Audit categories, emitted as audit_type
const (
	AuditAuth     = "auth"
	AuditSecurity = "security"
	AuditAccount  = "account"
)

// AuditEvent is one entry of the audit trail. Fingerprints are shortened
// before they are written.
type AuditEvent struct {
	EventType     string
	Fingerprint   string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes audit entries through the application logger under the
// message "audit"
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAuthAttempt records a login decision. Failures are logged at WARN.
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.emit(level, AuditAuth, event, slog.Bool("success", event.Success))
}

// LogSecurityEvent records signs of tampering: fingerprint mismatches,
// suspicious attempt patterns, rejected reset codes.
func (al *AuditLogger) LogSecurityEvent(event AuditEvent) {
	al.emit(slog.LevelWarn, AuditSecurity, event)
}

// LogAccountAction records a state change made by the authenticated context
func (al *AuditLogger) LogAccountAction(eventType, fingerprint string, metadata map[string]string) {
	al.emit(slog.LevelInfo, AuditAccount, AuditEvent{
		EventType:   eventType,
		Fingerprint: fingerprint,
		Metadata:    metadata,
	})
}

func (al *AuditLogger) emit(level slog.Level, kind string, event AuditEvent, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("audit_type", kind),
		slog.String("event_type", event.EventType),
	}
	attrs = append(attrs, extra...)
	if event.Fingerprint != "" {
		attrs = append(attrs, slog.String("fingerprint", ShortFingerprint(event.Fingerprint)))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	// sorted so entries with the same metadata read the same
	for _, key := range slices.Sorted(maps.Keys(event.Metadata)) {
		attrs = append(attrs, slog.String(key, event.Metadata[key]))
	}

	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
