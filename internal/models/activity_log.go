package models

import "time"

// Activity action types written to user_activity_logs
const (
	ActivityUserLogin         = "user_login"
	ActivityUserLogout        = "user_logout"
	ActivityAccountLocked     = "account_locked"
	ActivityTwoFactorVerify   = "2fa_verification"
	ActivityTwoFactorLocked   = "2fa_locked"
	ActivityTwoFactorGenerate = "2fa_generate"
	ActivityTwoFactorEnable   = "2fa_enable"
	ActivityTwoFactorDisable  = "2fa_disable"
	ActivityForgotPassword    = "forgot_password"
	ActivityPasswordChange    = "password_change"
)

// Activity results
const (
	ActivityResultSuccess = "success"
	ActivityResultFailure = "failure"
)

// ActivityLog is a row of user_activity_logs
type ActivityLog struct {
	ID                int64     `db:"id"`
	UserID            string    `db:"user_id"`
	SessionID         *string   `db:"session_id"`
	ActionType        string    `db:"action_type"`
	IPAddress         string    `db:"ip_address"`
	UserAgent         string    `db:"user_agent"`
	DeviceFingerprint *string   `db:"device_fingerprint"`
	ActionResult      string    `db:"action_result"`
	PerformedBy       string    `db:"performed_by"`
	CreatedAt         time.Time `db:"created_at"`
}

// NewActivityLog builds a log entry performed by the user themselves
func NewActivityLog(userID string, sessionID *string, actionType, result string, info RequestInfo) *ActivityLog {
	return &ActivityLog{
		UserID:            userID,
		SessionID:         sessionID,
		ActionType:        actionType,
		IPAddress:         info.IPAddress,
		UserAgent:         info.UserAgent,
		DeviceFingerprint: info.DeviceFingerprint,
		ActionResult:      result,
		PerformedBy:       userID,
	}
}
