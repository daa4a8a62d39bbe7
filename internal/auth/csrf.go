package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// DefaultCSRFTokenTTL is how long an issued CSRF token stays valid
const DefaultCSRFTokenTTL = 15 * time.Minute

// csrfTokenEntry stores token metadata
type csrfTokenEntry struct {
	boundTo string
	expiry  time.Time
}

// CSRFTokenManager issues and validates CSRF tokens. Tokens are bound to a
// client key (the client IP for anonymous callers).
type CSRFTokenManager struct {
	validTokens map[string]*csrfTokenEntry
	mu          sync.RWMutex
	tokenTTL    time.Duration
	now         func() time.Time
}

func NewCSRFTokenManager(ttl time.Duration) *CSRFTokenManager {
	if ttl <= 0 {
		ttl = DefaultCSRFTokenTTL
	}
	return &CSRFTokenManager{
		validTokens: make(map[string]*csrfTokenEntry),
		tokenTTL:    ttl,
		now:         time.Now,
	}
}

// TTL returns the token lifetime
func (m *CSRFTokenManager) TTL() time.Duration {
	return m.tokenTTL
}

// GenerateToken creates a 32 byte hex token bound to boundTo
func (m *CSRFTokenManager) GenerateToken(boundTo string) (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(randomBytes)

	m.mu.Lock()
	m.validTokens[token] = &csrfTokenEntry{
		boundTo: boundTo,
		expiry:  m.now().Add(m.tokenTTL),
	}
	m.mu.Unlock()

	return token, nil
}

// ValidateToken checks that the token exists, is unexpired and is bound to boundTo
func (m *CSRFTokenManager) ValidateToken(token, boundTo string) bool {
	m.mu.RLock()
	entry, exists := m.validTokens[token]
	m.mu.RUnlock()

	if !exists || entry.boundTo != boundTo {
		return false
	}

	if m.now().After(entry.expiry) {
		m.RevokeToken(token)
		return false
	}

	return true
}

// RevokeToken invalidates a CSRF token
func (m *CSRFTokenManager) RevokeToken(token string) {
	m.mu.Lock()
	delete(m.validTokens, token)
	m.mu.Unlock()
}

// Len reports the number of tracked tokens
func (m *CSRFTokenManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.validTokens)
}

// Sweep removes expired tokens and returns how many were dropped
func (m *CSRFTokenManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for token, entry := range m.validTokens {
		if now.After(entry.expiry) {
			delete(m.validTokens, token)
			removed++
		}
	}
	return removed
}

// Run sweeps expired tokens every interval until ctx is cancelled
func (m *CSRFTokenManager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
