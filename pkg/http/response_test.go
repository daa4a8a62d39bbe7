package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkghttp "github.com/BradenHooton/posgate/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteSuccess(w, http.StatusOK, "LOGIN_SUCCESSFUL", map[string]string{"session_id": "session-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decodeEnvelope(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "LOGIN_SUCCESSFUL", body["message"])
	assert.NotContains(t, body, "error")
	data := body["data"].(map[string]any)
	assert.Equal(t, "session-1", data["session_id"])

	ts, ok := body["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, err)
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "INVALID_CREDENTIALS", body["message"])
	assert.Equal(t, "Invalid email or password", body["error"])
	assert.NotContains(t, body, "data")
	assert.NotContains(t, body, "validation_errors")
}

func TestWriteErrorWithData(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteErrorWithData(w, http.StatusLocked, "ACCOUNT_LOCKED", "Account locked", map[string]string{"locked_until": "later"})

	assert.Equal(t, http.StatusLocked, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "ACCOUNT_LOCKED", body["message"])
	assert.Equal(t, "later", body["data"].(map[string]any)["locked_until"])
}

func TestWriteValidationError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteValidationError(w, "Invalid request payload", []pkghttp.FieldError{
		{Field: "email", Message: "email must be a valid email address"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var env pkghttp.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "VALIDATION_ERROR", env.Message)
	require.Len(t, env.ValidationErrors, 1)
	assert.Equal(t, "email", env.ValidationErrors[0].Field)
}

func TestWriteHelpers_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"bad request", func(w http.ResponseWriter) { pkghttp.WriteBadRequest(w, "x") }, 400, "BAD_REQUEST"},
		{"unauthorized", func(w http.ResponseWriter) { pkghttp.WriteUnauthorized(w, "TOKEN_EXPIRED", "x") }, 401, "TOKEN_EXPIRED"},
		{"forbidden", func(w http.ResponseWriter) { pkghttp.WriteForbidden(w, "ACCESS_DENIED", "x") }, 403, "ACCESS_DENIED"},
		{"not found", func(w http.ResponseWriter) { pkghttp.WriteNotFound(w, "x") }, 404, "NOT_FOUND"},
		{"too many", func(w http.ResponseWriter) { pkghttp.WriteTooManyRequests(w, "x") }, 429, "RATE_LIMIT_EXCEEDED"},
		{"internal", func(w http.ResponseWriter) { pkghttp.WriteInternalError(w, "x") }, 500, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeEnvelope(t, w)["message"])
		})
	}
}
