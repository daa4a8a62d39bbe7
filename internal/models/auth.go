package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the token_type claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims is the signed payload of access and refresh tokens.
// sub carries the user id and user_name the email.
type TokenClaims struct {
	UserName  string `json:"user_name"`
	Name      string `json:"name"`
	RoleID    int    `json:"role_id"`
	RoleName  string `json:"role_name"`
	SessionID string `json:"session_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// UserID returns the subject
func (c *TokenClaims) UserID() string {
	return c.Subject
}

// TokenSubject is the identity a token pair is minted for
type TokenSubject struct {
	UserID    string
	Email     string
	Name      string
	RoleID    int
	RoleName  string
	SessionID string
}

// SubjectFor builds the token subject for a user and session
func SubjectFor(user *User, sessionID string) TokenSubject {
	return TokenSubject{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.DisplayName(),
		RoleID:    user.RoleID,
		RoleName:  user.RoleName,
		SessionID: sessionID,
	}
}

// TokenPair is the result of a successful authentication
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthenticatedUser is what the JWT middleware places on the request context
type AuthenticatedUser struct {
	ID        string
	Email     string
	Name      string
	RoleID    int
	RoleName  string
	SessionID string
	Claims    *TokenClaims
}

// LoginResult is the data payload of a successful login or 2FA verification
type LoginResult struct {
	AccessToken        string      `json:"accessToken,omitempty"`
	RefreshToken       string      `json:"refreshToken,omitempty"`
	SessionID          string      `json:"session_id,omitempty"`
	Requires2FA        bool        `json:"requires_2fa"`
	Is2FAAuthenticated bool        `json:"is_2fa_authenticated"`
	User               UserSummary `json:"user"`
}

// LockedResponse is the payload returned with ACCOUNT_LOCKED and 2FA_LOCKED
type LockedResponse struct {
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// RefreshResult is the payload of a token refresh
type RefreshResult struct {
	AccessToken string `json:"accessToken"`
}

// LogoutResult is the payload of a logout
type LogoutResult struct {
	LoggedOutAt time.Time `json:"logged_out_at"`
	SessionID   string    `json:"session_id"`
}
