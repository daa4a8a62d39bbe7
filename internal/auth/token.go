package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SecretProvider resolves signing secrets by name
type SecretProvider interface {
	Get(ctx context.Context, key string) (string, error)
}

// TokenError is a verification failure with the reason code sent to clients
type TokenError struct {
	Reason string
	Err    error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

// TokenIssuerConfig holds the token lifetimes and issuer
type TokenIssuerConfig struct {
	SecretName       string
	Issuer           string
	AccessExpiry     time.Duration
	SessionExpiry    time.Duration
	RememberMeExpiry time.Duration
}

// TokenIssuer mints and verifies HS256 access and refresh tokens. The signing
// secret is looked up on every call so a rotated secret is picked up once the
// cache entry expires.
type TokenIssuer struct {
	secrets SecretProvider
	cfg     TokenIssuerConfig
	now     func() time.Time
}

func NewTokenIssuer(secrets SecretProvider, cfg TokenIssuerConfig) *TokenIssuer {
	return &TokenIssuer{
		secrets: secrets,
		cfg:     cfg,
		now:     time.Now,
	}
}

// RefreshExpiry follows the session remember-me policy
func (ti *TokenIssuer) RefreshExpiry(rememberMe bool) time.Duration {
	if rememberMe {
		return ti.cfg.RememberMeExpiry
	}
	return ti.cfg.SessionExpiry
}

// IssuePair creates an access and a refresh token for the same session
func (ti *TokenIssuer) IssuePair(ctx context.Context, subject models.TokenSubject, rememberMe bool) (*models.TokenPair, error) {
	access, err := ti.sign(ctx, subject, models.TokenTypeAccess, ti.cfg.AccessExpiry)
	if err != nil {
		return nil, err
	}

	refresh, err := ti.sign(ctx, subject, models.TokenTypeRefresh, ti.RefreshExpiry(rememberMe))
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueAccessToken creates a single access token
func (ti *TokenIssuer) IssueAccessToken(ctx context.Context, subject models.TokenSubject) (string, error) {
	return ti.sign(ctx, subject, models.TokenTypeAccess, ti.cfg.AccessExpiry)
}

func (ti *TokenIssuer) sign(ctx context.Context, subject models.TokenSubject, tokenType string, expiry time.Duration) (string, error) {
	secret, err := ti.secrets.Get(ctx, ti.cfg.SecretName)
	if err != nil {
		return "", fmt.Errorf("failed to resolve signing secret: %w", err)
	}

	now := ti.now()
	claims := &models.TokenClaims{
		UserName:  subject.Email,
		Name:      subject.Name,
		RoleID:    subject.RoleID,
		RoleName:  subject.RoleName,
		SessionID: subject.SessionID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    ti.cfg.Issuer,
			Subject:   subject.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return tokenString, nil
}

// Verify checks signature, issuer, expiry, required claims and that the token
// is one of the allowed types. Failures a client can act on are *TokenError;
// any other error means the secret could not be resolved.
func (ti *TokenIssuer) Verify(ctx context.Context, tokenString string, allowedTypes ...string) (*models.TokenClaims, error) {
	secret, err := ti.secrets.Get(ctx, ti.cfg.SecretName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve signing secret: %w", err)
	}

	claims := &models.TokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)

	_, err = parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &TokenError{Reason: models.CodeTokenExpired, Err: err}
		}
		return nil, &TokenError{Reason: models.CodeTokenInvalid, Err: err}
	}

	if claims.Subject == "" || claims.UserName == "" || claims.RoleID == 0 || claims.SessionID == "" {
		return nil, &TokenError{Reason: models.CodeInvalidTokenPayload}
	}

	if len(allowedTypes) > 0 && !slices.Contains(allowedTypes, claims.TokenType) {
		return nil, &TokenError{
			Reason: models.CodeTokenInvalid,
			Err:    fmt.Errorf("token type %q not accepted here", claims.TokenType),
		}
	}

	return claims, nil
}
