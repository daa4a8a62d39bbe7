package handlers_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/posgate/internal/auth"
	"github.com/BradenHooton/posgate/internal/handlers"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealth(t *testing.T) {
	handler := handlers.NewHealthHandler(&handlers.MockHealthChecker{}, discardLogger())

	w := httptest.NewRecorder()
	handler.Health(w, httptest.NewRequest("GET", "/health", nil))

	var resp map[string]string
	env := handlers.DecodeEnvelope(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.CodeHealthy, env.Message)
	assert.Equal(t, "running", resp["status"])
	assert.Equal(t, "up", resp["database"])
}

func TestHealth_DatabaseDown(t *testing.T) {
	handler := handlers.NewHealthHandler(&handlers.MockHealthChecker{Err: errors.New("dial tcp: refused")}, discardLogger())

	w := httptest.NewRecorder()
	handler.Health(w, httptest.NewRequest("GET", "/health", nil))

	handlers.AssertErrorCode(t, w, http.StatusServiceUnavailable, models.CodeUnhealthy)
	assert.Contains(t, w.Body.String(), `"database":"down"`)
	assert.NotContains(t, w.Body.String(), "refused")
}

func TestCSRFToken_BoundToClient(t *testing.T) {
	manager := auth.NewCSRFTokenManager(time.Hour)
	handler := handlers.NewCSRFHandler(manager, nil, discardLogger())

	req := httptest.NewRequest("GET", "/api/v1/csrf/token", nil)
	req.RemoteAddr = "198.51.100.4:40000"
	w := httptest.NewRecorder()
	handler.Token(w, req)

	var resp struct {
		Token     string `json:"csrf_token"`
		ExpiresIn int    `json:"expires_in"`
	}
	env := handlers.DecodeEnvelope(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.CodeCSRFTokenIssued, env.Message)
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.True(t, manager.ValidateToken(resp.Token, "198.51.100.4"))
	assert.False(t, manager.ValidateToken(resp.Token, "198.51.100.5"))
}
