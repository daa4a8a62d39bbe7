package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-32-characters-long!!"

// staticSecrets serves fixed secrets by name
type staticSecrets map[string]string

func (s staticSecrets) Get(_ context.Context, key string) (string, error) {
	v, ok := s[key]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func newTestIssuer(now time.Time) *TokenIssuer {
	ti := NewTokenIssuer(staticSecrets{"JWT_AUTH_SECRET": testSecret}, TokenIssuerConfig{
		SecretName:       "JWT_AUTH_SECRET",
		Issuer:           "https://api.example.com",
		AccessExpiry:     time.Hour,
		SessionExpiry:    24 * time.Hour,
		RememberMeExpiry: 7 * 24 * time.Hour,
	})
	ti.now = func() time.Time { return now }
	return ti
}

func testSubject() models.TokenSubject {
	return models.TokenSubject{
		UserID:    "0b7a3c3e-2f7e-4d2a-9c55-0d1f5a0f1a11",
		Email:     "cashier@example.com",
		Name:      "Casey Cashier",
		RoleID:    3,
		RoleName:  "cashier",
		SessionID: "session-abc",
	}
}

func TestIssuePair_ClaimsAndExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ti := newTestIssuer(now)
	ctx := context.Background()

	pair, err := ti.IssuePair(ctx, testSubject(), true)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	access, err := ti.Verify(ctx, pair.AccessToken, models.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, testSubject().UserID, access.UserID())
	assert.Equal(t, "cashier@example.com", access.UserName)
	assert.Equal(t, 3, access.RoleID)
	assert.Equal(t, "session-abc", access.SessionID)
	assert.Equal(t, "https://api.example.com", access.Issuer)
	assert.Equal(t, now.Add(time.Hour).Unix(), access.ExpiresAt.Unix())
	assert.NotEmpty(t, access.ID)

	refresh, err := ti.Verify(ctx, pair.RefreshToken, models.TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeRefresh, refresh.TokenType)
	assert.Equal(t, now.Add(7*24*time.Hour).Unix(), refresh.ExpiresAt.Unix())
}

func TestRefreshExpiry(t *testing.T) {
	ti := newTestIssuer(time.Now())
	assert.Equal(t, 24*time.Hour, ti.RefreshExpiry(false))
	assert.Equal(t, 7*24*time.Hour, ti.RefreshExpiry(true))
}

func TestVerify_Expired(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ti := newTestIssuer(issuedAt)

	token, err := ti.IssueAccessToken(context.Background(), testSubject())
	require.NoError(t, err)

	ti.now = func() time.Time { return issuedAt.Add(2 * time.Hour) }
	_, err = ti.Verify(context.Background(), token)

	var tokenErr *TokenError
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, models.CodeTokenExpired, tokenErr.Reason)
}

func TestVerify_WrongSecret(t *testing.T) {
	ti := newTestIssuer(time.Now())
	token, err := ti.IssueAccessToken(context.Background(), testSubject())
	require.NoError(t, err)

	other := newTestIssuer(time.Now())
	other.secrets = staticSecrets{"JWT_AUTH_SECRET": "another-secret-of-enough-length!"}

	_, err = other.Verify(context.Background(), token)
	var tokenErr *TokenError
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, models.CodeTokenInvalid, tokenErr.Reason)
}

func TestVerify_RejectsOtherSigningMethod(t *testing.T) {
	claims := &models.TokenClaims{
		UserName: "a@example.com", RoleID: 2, SessionID: "session-x", TokenType: models.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "https://api.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = newTestIssuer(time.Now()).Verify(context.Background(), token)
	var tokenErr *TokenError
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, models.CodeTokenInvalid, tokenErr.Reason)
}

func TestVerify_MissingClaims(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.TokenSubject)
	}{
		{"no subject", func(s *models.TokenSubject) { s.UserID = "" }},
		{"no user name", func(s *models.TokenSubject) { s.Email = "" }},
		{"no role", func(s *models.TokenSubject) { s.RoleID = 0 }},
		{"no session", func(s *models.TokenSubject) { s.SessionID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ti := newTestIssuer(time.Now())
			subject := testSubject()
			tt.mutate(&subject)

			token, err := ti.IssueAccessToken(context.Background(), subject)
			require.NoError(t, err)

			_, err = ti.Verify(context.Background(), token)
			var tokenErr *TokenError
			require.ErrorAs(t, err, &tokenErr)
			assert.Equal(t, models.CodeInvalidTokenPayload, tokenErr.Reason)
		})
	}
}

func TestVerify_TokenTypeRestriction(t *testing.T) {
	ti := newTestIssuer(time.Now())
	pair, err := ti.IssuePair(context.Background(), testSubject(), false)
	require.NoError(t, err)

	_, err = ti.Verify(context.Background(), pair.RefreshToken, models.TokenTypeAccess)
	var tokenErr *TokenError
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, models.CodeTokenInvalid, tokenErr.Reason)

	_, err = ti.Verify(context.Background(), pair.RefreshToken, models.TokenTypeAccess, models.TokenTypeRefresh)
	assert.NoError(t, err)
}

func TestVerify_SecretUnavailable(t *testing.T) {
	ti := newTestIssuer(time.Now())
	token, err := ti.IssueAccessToken(context.Background(), testSubject())
	require.NoError(t, err)

	ti.secrets = staticSecrets{}
	_, err = ti.Verify(context.Background(), token)
	require.Error(t, err)

	var tokenErr *TokenError
	assert.False(t, errors.As(err, &tokenErr), "secret failures are not client errors")
}
