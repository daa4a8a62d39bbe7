package models

import "time"

// SessionIDPrefix marks session identifiers
const SessionIDPrefix = "session-"

// Session is a row of user_sessions
type Session struct {
	SessionID         string
	UserID            string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint *string
	ExpiresAt         time.Time
	IsActive          bool
	LastActivity      time.Time
	CreatedAt         time.Time
}

// IsExpired compares the fixed expiry to now
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
