package models

import "time"

// LoginStatistics is the per-user aggregate in user_login_statistics
type LoginStatistics struct {
	UserID                    string     `db:"user_id"`
	TotalLogins               int        `db:"total_logins"`
	SuccessfulLogins          int        `db:"successful_logins"`
	FailedLogins              int        `db:"failed_logins"`
	ConsecutiveFailedAttempts int        `db:"consecutive_failed_attempts"`
	LastSuccessfulLoginAt     *time.Time `db:"last_successful_login_at"`
	LastSuccessfulLoginIP     *string    `db:"last_successful_login_ip"`
	LastFailedLoginAt         *time.Time `db:"last_failed_login_at"`
	LastFailedLoginIP         *string    `db:"last_failed_login_ip"`
	ActiveSessionsCount       int        `db:"active_sessions_count"`
}

// RequestInfo is the client context recorded with sessions and activity
type RequestInfo struct {
	IPAddress         string
	UserAgent         string
	DeviceFingerprint *string
}
