package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountLocked   = errors.New("account is temporarily locked")
	ErrTwoFactorLocked = errors.New("two-factor verification is temporarily locked")

	// ErrMalformedHash marks a stored hash bcrypt cannot parse. It is a system
	// error, never a credential mismatch.
	ErrMalformedHash = errors.New("stored hash is malformed")
)

// AuthError is a documented outcome of an auth operation: an HTTP status, a
// machine-readable code and a client-safe message. Some outcomes (lockout,
// 2FA challenge) carry a payload for the response body.
type AuthError struct {
	Status  int
	Code    string
	Message string
	Data    any
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAuthError creates an AuthError without payload
func NewAuthError(status int, code, message string) *AuthError {
	return &AuthError{Status: status, Code: code, Message: message}
}

// Response codes shared by services, middleware and handlers
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeAccountLocked       = "ACCOUNT_LOCKED"
	CodeInternalServerError = "INTERNAL_SERVER_ERROR"

	CodeLoginSuccessful    = "LOGIN_SUCCESSFUL"
	CodeTwoFactorRequired  = "TWO_FACTOR_REQUIRED"
	CodeTwoFactorVerified  = "TWO_FACTOR_VERIFIED"
	CodeLogoutSuccessful   = "LOGOUT_SUCCESSFUL"
	CodeTokenRefreshed     = "TOKEN_REFRESHED_SUCCESSFULLY"
	CodePasswordResetSent  = "PASSWORD_RESET_SENT"
	CodePasswordResetDone  = "PASSWORD_RESET_SUCCESS"
	CodeTokenValid         = "TOKEN_VALID"
	CodeTwoFactorGenerated = "2FA_CREDENTIALS_GENERATED"
	CodeTwoFactorEnabled   = "2FA_ENABLED_SUCCESSFULLY"
	CodeTwoFactorDisabled  = "2FA_DISABLED_SUCCESSFULLY"

	CodeUserNotFound          = "USER_NOT_FOUND"
	CodeTwoFactorNotEnabled   = "2FA_NOT_ENABLED"
	CodeTwoFactorNotConfig    = "2FA_NOT_CONFIGURED"
	CodeTwoFactorNotInit      = "2FA_NOT_INITIALIZED"
	CodeTwoFactorLocked       = "2FA_LOCKED"
	CodeTwoFactorAlreadyOn    = "2FA_ALREADY_ENABLED"
	CodeTwoFactorAlreadyOff   = "2FA_ALREADY_DISABLED"
	CodeInvalidTwoFactorToken = "INVALID_2FA_TOKEN"
	CodeNoBackupCodes         = "NO_BACKUP_CODES"

	CodeTokenMissing     = "TOKEN_MISSING"
	CodeTokenNotFound    = "TOKEN_NOT_FOUND"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeTokenAlreadyUsed = "TOKEN_ALREADY_USED"
	CodeTokenInvalid     = "TOKEN_INVALID"

	CodeAuthorizationRequired = "AUTHORIZATION_REQUIRED"
	CodeInvalidTokenFormat    = "INVALID_TOKEN_FORMAT"
	CodeInvalidTokenPayload   = "INVALID_TOKEN_PAYLOAD"

	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeSessionInactive     = "SESSION_INACTIVE"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeSessionUserMismatch = "SESSION_USER_MISMATCH"

	CodeAccessDenied = "ACCESS_DENIED"
	CodeInvalidUser  = "INVALID_USER"
	CodeInvalidRole  = "INVALID_ROLE"

	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeBadGateway         = "BAD_GATEWAY"
	CodeGatewayTimeout     = "GATEWAY_TIMEOUT"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeCSRFRejected       = "CSRF_VALIDATION_FAILED"

	CodeHealthy         = "API_GATEWAY_HEALTHY"
	CodeUnhealthy       = "API_GATEWAY_UNHEALTHY"
	CodeCSRFTokenIssued = "CSRF_TOKEN_GENERATED"
)
