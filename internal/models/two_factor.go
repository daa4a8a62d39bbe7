package models

import (
	"time"
)

// TwoFactorRecord is the user_two_factor_auth row for a user
type TwoFactorRecord struct {
	ID                     int64
	UserID                 string
	Secret                 string   // base32 TOTP secret
	BackupCodes            []string // bcrypt hashes, generation order
	BackupCodesGeneratedAt *time.Time
	BackupCodesUsedCount   int
	FailedAttempts         int
	MaxFailedAttempts      int
	IsActive               bool
	IsLocked               bool
	LockedUntil            *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// LockState checks the explicit lock flag first, then falls back to the
// failed attempt threshold
func (r *TwoFactorRecord) LockState(now time.Time) LockState {
	if r.IsLocked {
		if r.LockedUntil == nil {
			return LockedIndefinitely()
		}
		if r.LockedUntil.After(now) {
			return LockedUntil(*r.LockedUntil)
		}
		return Unlocked()
	}
	if r.MaxFailedAttempts > 0 && r.FailedAttempts >= r.MaxFailedAttempts {
		return LockedIndefinitely()
	}
	return Unlocked()
}

// TwoFactorState is the lifecycle of a user's second factor
type TwoFactorState int

const (
	TwoFactorNotConfigured TwoFactorState = iota
	TwoFactorPending
	TwoFactorEnabled
)

func (s TwoFactorState) String() string {
	switch s {
	case TwoFactorPending:
		return "pending"
	case TwoFactorEnabled:
		return "enabled"
	default:
		return "not_configured"
	}
}

// ResolveTwoFactorState derives the state from the user flag and the active record
func ResolveTwoFactorState(user *User, record *TwoFactorRecord) TwoFactorState {
	switch {
	case user.Is2FAEnabled:
		return TwoFactorEnabled
	case record != nil && record.IsActive:
		return TwoFactorPending
	default:
		return TwoFactorNotConfigured
	}
}

// Verification types accepted by the 2FA verify endpoint
const (
	TwoFactorTypeTOTP   = "totp"
	TwoFactorTypeBackup = "backup"
)

// TwoFactorFailure is the outcome of an atomic failed-attempt increment
type TwoFactorFailure struct {
	FailedAttempts    int
	MaxFailedAttempts int
	IsLocked          bool
	LockedUntil       *time.Time
}

// RemainingAttempts never returns a negative count
func (f *TwoFactorFailure) RemainingAttempts() int {
	if n := f.MaxFailedAttempts - f.FailedAttempts; n > 0 {
		return n
	}
	return 0
}

// TwoFactorSetupResponse is returned once by generate; codes are never shown again
type TwoFactorSetupResponse struct {
	Secret      string   `json:"secret"`
	QRCodeURL   string   `json:"qr_code_url"`
	BackupCodes []string `json:"backup_codes"`
}

// TwoFactorEnabledResponse is returned by enable
type TwoFactorEnabledResponse struct {
	UserID    string    `json:"user_id"`
	EnabledAt time.Time `json:"enabled_at"`
}

// TwoFactorDisabledResponse is returned by disable
type TwoFactorDisabledResponse struct {
	Is2FAEnabled bool `json:"is_2fa_enabled"`
}
