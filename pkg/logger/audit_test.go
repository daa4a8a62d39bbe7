package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedAuditLogger() (*AuditLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewAuditLogger(slog.New(h)), &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestAuditLogger_FailureLogsAtWarnWithMaskedEmail(t *testing.T) {
	al, buf := newBufferedAuditLogger()

	al.LogAuthAttempt(context.Background(), AuditEvent{
		EventType:     "user_login",
		Email:         "cashier@store.com",
		IPAddress:     "203.0.113.1",
		FailureReason: "invalid_credentials",
	})

	rec := lastRecord(t, buf)
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "audit", rec["msg"])
	assert.Equal(t, CategoryAuth, rec["audit_type"])
	assert.Equal(t, "c******@*****.com", rec["email"])
	assert.Equal(t, false, rec["success"])
}

func TestAuditLogger_LogLockout(t *testing.T) {
	al, buf := newBufferedAuditLogger()
	until := time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC)

	al.LogLockout(context.Background(), "user-1", "10.0.0.1", until, "too_many_failed_logins")

	rec := lastRecord(t, buf)
	assert.Equal(t, CategoryLockout, rec["audit_type"])
	assert.Equal(t, "2026-01-01T12:30:00Z", rec["locked_until"])
	assert.Equal(t, "user-1", rec["user_id"])
}

func TestAuditLogger_PasswordChangeSuccessIsInfo(t *testing.T) {
	al, buf := newBufferedAuditLogger()

	al.LogPasswordChange(context.Background(), "user-1", "", true)

	rec := lastRecord(t, buf)
	assert.Equal(t, "INFO", rec["level"])
	assert.NotContains(t, rec, "ip_address")
}
