package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit categories
const (
	CategoryAuth      = "auth"
	CategoryLockout   = "lockout"
	CategoryTwoFactor = "two_factor"
	CategoryPassword  = "password"
	CategorySession   = "session"
)

// AuditEvent is one security-relevant outcome
type AuditEvent struct {
	EventType     string
	UserID        string
	SessionID     string
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes audit records through slog
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger}
}

// Log writes an event under the given category. Failures are logged at warn.
func (al *AuditLogger) Log(ctx context.Context, category string, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", category),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAuthAttempt logs login, logout and refresh outcomes
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	al.Log(ctx, CategoryAuth, event)
}

// LogLockout logs an account or 2FA lock being applied
func (al *AuditLogger) LogLockout(ctx context.Context, userID, ipAddress string, lockedUntil time.Time, reason string) {
	al.Log(ctx, CategoryLockout, AuditEvent{
		EventType:     "lock_applied",
		UserID:        userID,
		IPAddress:     ipAddress,
		FailureReason: reason,
		Metadata:      map[string]string{"locked_until": lockedUntil.UTC().Format(time.RFC3339)},
	})
}

// LogPasswordChange logs password reset outcomes
func (al *AuditLogger) LogPasswordChange(ctx context.Context, userID, ipAddress string, success bool) {
	al.Log(ctx, CategoryPassword, AuditEvent{
		EventType: "password_change",
		UserID:    userID,
		IPAddress: ipAddress,
		Success:   success,
	})
}
