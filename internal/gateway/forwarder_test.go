package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/posgate/internal/auth"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signerFunc func(ctx context.Context, subject string) (string, error)

func (f signerFunc) Sign(ctx context.Context, subject string) (string, error) { return f(ctx, subject) }

func echoSigner() TokenSigner {
	return signerFunc(func(ctx context.Context, subject string) (string, error) {
		return "jwt-for-" + subject, nil
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// echoBackend replies with the headers and path it received
func echoBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"path":          r.URL.Path,
			"query":         r.URL.RawQuery,
			"gateway_token": r.Header.Get(HeaderGatewayToken),
			"user_id":       r.Header.Get(HeaderUserID),
			"session_id":    r.Header.Get(HeaderSessionID),
			"request_id":    r.Header.Get(HeaderRequestID),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func forward(t *testing.T, f *Forwarder, r *http.Request) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	w := httptest.NewRecorder()
	f.ServeHTTP(w, r)
	var body map[string]string
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestForwarder_AuthenticatedRequest(t *testing.T) {
	backend := echoBackend(t)
	f, err := NewForwarder(backend.URL, echoSigner(), nil, testLogger())
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/products?page=2", nil)
	ctx := auth.WithUser(r.Context(), &models.AuthenticatedUser{ID: "user-1", SessionID: "session-abc"})
	ctx = context.WithValue(ctx, middleware.RequestIDKey, "req-9")
	w, body := forward(t, f, r.WithContext(ctx))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/api/v1/products", body["path"])
	assert.Equal(t, "page=2", body["query"])
	assert.Equal(t, "Bearer jwt-for-user-1", body["gateway_token"])
	assert.Equal(t, "user-1", body["user_id"])
	assert.Equal(t, "session-abc", body["session_id"])
	assert.Equal(t, "req-9", body["request_id"])
}

func TestForwarder_StripsSpoofedHeaders(t *testing.T) {
	backend := echoBackend(t)
	f, err := NewForwarder(backend.URL, echoSigner(), nil, testLogger())
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/public/menu", nil)
	r.Header.Set(HeaderUserID, "admin-1")
	r.Header.Set(HeaderSessionID, "session-forged")
	r.Header.Set(HeaderGatewayToken, "Bearer forged")
	w, body := forward(t, f, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bearer jwt-for-public", body["gateway_token"])
	assert.Empty(t, body["user_id"])
	assert.Empty(t, body["session_id"])
}

func TestForwarder_NotConfigured(t *testing.T) {
	f, err := NewForwarder("", echoSigner(), nil, testLogger())
	require.NoError(t, err)
	assert.False(t, f.Configured())

	w, _ := forward(t, f, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeServiceUnavailable)
}

func TestForwarder_BackendDown(t *testing.T) {
	backend := echoBackend(t)
	url := backend.URL
	backend.Close()

	f, err := NewForwarder(url, echoSigner(), nil, testLogger())
	require.NoError(t, err)

	w, _ := forward(t, f, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeBadGateway)
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestForwarder_BackendTimeout(t *testing.T) {
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	})
	f, err := NewForwarder("http://pos-backend.internal", echoSigner(), transport, testLogger())
	require.NoError(t, err)

	w, _ := forward(t, f, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeGatewayTimeout)
}

func TestForwarder_SignerFailure(t *testing.T) {
	backend := echoBackend(t)
	signer := signerFunc(func(ctx context.Context, subject string) (string, error) {
		return "", errors.New("secret unavailable")
	})
	f, err := NewForwarder(backend.URL, signer, nil, testLogger())
	require.NoError(t, err)

	w, _ := forward(t, f, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestNewForwarder_RejectsRelativeURL(t *testing.T) {
	_, err := NewForwarder("pos-backend", echoSigner(), nil, testLogger())
	assert.Error(t, err)
}
