package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PublicSubject is the gateway token subject for unauthenticated forwards
const PublicSubject = "public"

// GatewaySignerConfig names the secret and the issuer/audience pair
type GatewaySignerConfig struct {
	SecretName string
	Issuer     string // gateway URL
	Audience   string // backend API URL
	Expiry     time.Duration
}

// GatewaySigner mints the short-lived token the backend uses to trust
// forwarded requests
type GatewaySigner struct {
	secrets SecretProvider
	cfg     GatewaySignerConfig
	now     func() time.Time
}

func NewGatewaySigner(secrets SecretProvider, cfg GatewaySignerConfig) *GatewaySigner {
	return &GatewaySigner{secrets: secrets, cfg: cfg, now: time.Now}
}

// Sign returns a token for subject, which is a user id or PublicSubject
func (gs *GatewaySigner) Sign(ctx context.Context, subject string) (string, error) {
	secret, err := gs.secrets.Get(ctx, gs.cfg.SecretName)
	if err != nil {
		return "", fmt.Errorf("failed to resolve gateway secret: %w", err)
	}
	if secret == "" {
		return "", fmt.Errorf("gateway secret %s is empty", gs.cfg.SecretName)
	}

	now := gs.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    gs.cfg.Issuer,
		Audience:  jwt.ClaimStrings{gs.cfg.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(gs.cfg.Expiry)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign gateway token: %w", err)
	}
	return token, nil
}
