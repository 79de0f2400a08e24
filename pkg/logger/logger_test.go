package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	pkglogger "github.com/BradenHooton/matcenter/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortFingerprint(t *testing.T) {
	assert.Equal(t, "[none]", pkglogger.ShortFingerprint(""))
	assert.Equal(t, "abc", pkglogger.ShortFingerprint("abc"))
	assert.Equal(t, "01234567...", pkglogger.ShortFingerprint("0123456789abcdef"))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, pkglogger.SanitizeQueryString("password=hunter2&clientId=abc"))
	assert.True(t, pkglogger.SanitizeQueryString("Code=reset"))
	assert.False(t, pkglogger.SanitizeQueryString("topic=energy"))
}

func TestAuditLogger_FailureIsWarn(t *testing.T) {
	var buf bytes.Buffer
	al := pkglogger.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		Fingerprint:   "0123456789abcdef",
		FailureReason: "invalid_credential",
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "auth", entry["audit_type"])
	assert.Equal(t, "01234567...", entry["fingerprint"])
	assert.Equal(t, "invalid_credential", entry["failure_reason"])
}

func TestAuditLogger_SecurityEvent(t *testing.T) {
	var buf bytes.Buffer
	al := pkglogger.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogSecurityEvent(pkglogger.AuditEvent{
		EventType: "session_fingerprint_mismatch",
		Metadata:  map[string]string{"stored": "aaaa..."},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "security", entry["audit_type"])
	assert.Equal(t, "session_fingerprint_mismatch", entry["event_type"])
	assert.Equal(t, "aaaa...", entry["stored"])
}

func TestAuditLogger_AccountAction(t *testing.T) {
	var buf bytes.Buffer
	al := pkglogger.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogAccountAction("task_hint_set", "", map[string]string{"task_number": "7"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, pkglogger.AuditAccount, entry["audit_type"])
	assert.Equal(t, "7", entry["task_number"])
	assert.NotContains(t, entry, "fingerprint")
}
