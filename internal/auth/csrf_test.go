package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFTokenManager_GenerateAndValidate(t *testing.T) {
	m := NewCSRFTokenManager(0)
	assert.Equal(t, DefaultCSRFTokenTTL, m.TTL())

	token, err := m.GenerateToken("203.0.113.7")
	require.NoError(t, err)
	assert.Len(t, token, 64)

	assert.True(t, m.ValidateToken(token, "203.0.113.7"))
	assert.False(t, m.ValidateToken(token, "198.51.100.1"), "token is bound to the issuing client")
	assert.False(t, m.ValidateToken("unknown", "203.0.113.7"))
}

func TestCSRFTokenManager_Expiry(t *testing.T) {
	now := time.Now()
	m := NewCSRFTokenManager(time.Minute)
	m.now = func() time.Time { return now }

	token, err := m.GenerateToken("client")
	require.NoError(t, err)

	m.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.False(t, m.ValidateToken(token, "client"))
	assert.Zero(t, m.Len(), "expired token is dropped on validation")
}

func TestCSRFTokenManager_Sweep(t *testing.T) {
	now := time.Now()
	m := NewCSRFTokenManager(time.Minute)
	m.now = func() time.Time { return now }

	_, err := m.GenerateToken("a")
	require.NoError(t, err)
	m.now = func() time.Time { return now.Add(30 * time.Second) }
	_, err = m.GenerateToken("b")
	require.NoError(t, err)

	m.now = func() time.Time { return now.Add(75 * time.Second) }
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestCSRFTokenManager_Revoke(t *testing.T) {
	m := NewCSRFTokenManager(time.Minute)
	token, err := m.GenerateToken("client")
	require.NoError(t, err)

	m.RevokeToken(token)
	assert.False(t, m.ValidateToken(token, "client"))
}
