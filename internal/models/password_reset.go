package models

import "time"

// PasswordResetToken is a single-use credential recovery token
type PasswordResetToken struct {
	ID        int64
	UserID    string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsExpired compares expires_at to now
func (t *PasswordResetToken) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// IsUsed reports whether used_at has been set
func (t *PasswordResetToken) IsUsed() bool {
	return t.UsedAt != nil
}

// ResetTokenStatus is the payload of validate-reset-token
type ResetTokenStatus struct {
	TokenValid bool      `json:"token_valid"`
	UserID     string    `json:"user_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// PasswordResetResult is the payload of reset-password
type PasswordResetResult struct {
	UserID  string    `json:"user_id"`
	ResetAt time.Time `json:"reset_at"`
}
