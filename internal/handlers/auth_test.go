package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/posgate/internal/handlers"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/BradenHooton/posgate/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_Success(t *testing.T) {
	var got services.LoginRequest
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, req services.LoginRequest, info models.RequestInfo) (*models.LoginResult, error) {
			got = req
			assert.Equal(t, "192.0.2.10", info.IPAddress)
			assert.Equal(t, "pos-terminal/1.0", info.UserAgent)
			return &models.LoginResult{
				AccessToken:        "access_token_123",
				RefreshToken:       "refresh_token_123",
				SessionID:          "sess-1",
				Is2FAAuthenticated: true,
				User:               models.UserSummary{ID: "user-1", Email: "user@example.com"},
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, nil)
	req := handlers.NewTestRequest(t, "POST", "/api/v1/auth/login", handlers.LoginRequest{
		Email:      "user@example.com",
		Password:   "password123",
		RememberMe: true,
	})
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("User-Agent", "pos-terminal/1.0")

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp models.LoginResult
	env := handlers.DecodeEnvelope(t, w, http.StatusOK, &resp)
	assert.True(t, env.Success)
	assert.Equal(t, models.CodeLoginSuccessful, env.Message)
	assert.Equal(t, "access_token_123", resp.AccessToken)
	assert.Equal(t, "refresh_token_123", resp.RefreshToken)
	assert.True(t, got.RememberMe)
	assert.Equal(t, "user@example.com", got.Email)
}

func TestLogin_TwoFactorChallenge(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, req services.LoginRequest, info models.RequestInfo) (*models.LoginResult, error) {
			return &models.LoginResult{
				Requires2FA: true,
				User:        models.UserSummary{ID: "user-1"},
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, nil)
	req := handlers.NewTestRequest(t, "POST", "/api/v1/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp models.LoginResult
	env := handlers.DecodeEnvelope(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.CodeTwoFactorRequired, env.Message)
	assert.True(t, resp.Requires2FA)
	assert.Empty(t, resp.AccessToken)
}

func TestLogin_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing email", `{"password":"x"}`, "email"},
		{"bad email", `{"email":"not-an-email","password":"x"}`, "email"},
		{"missing password", `{"email":"user@example.com"}`, "password"},
		{"malformed json", `{"email":`, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := &handlers.MockAuthService{
				LoginFunc: func(ctx context.Context, req services.LoginRequest, info models.RequestInfo) (*models.LoginResult, error) {
					t.Fatal("service must not be called")
					return nil, nil
				},
			}
			handler := handlers.NewAuthHandler(mockAuth, nil, nil)
			req := httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader(tt.body))

			w := httptest.NewRecorder()
			handler.Login(w, req)

			handlers.AssertValidationField(t, w, tt.field)
		})
	}
}

func TestLogin_BodyTooLarge(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, nil, nil)
	req := httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader(`{"email":"`+strings.Repeat("a", 64)+`"}`))
	w := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(w, req.Body, 16)

	handler.Login(w, req)

	handlers.AssertErrorCode(t, w, http.StatusRequestEntityTooLarge, models.CodePayloadTooLarge)
}

func TestLogin_ServiceErrors(t *testing.T) {
	lockedUntil := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantData   bool
	}{
		{
			name:       "invalid credentials",
			err:        models.NewAuthError(http.StatusUnauthorized, models.CodeInvalidCredentials, "Invalid email or password"),
			wantStatus: http.StatusUnauthorized,
			wantCode:   models.CodeInvalidCredentials,
		},
		{
			name: "account locked carries locked_until",
			err: &models.AuthError{
				Status:  http.StatusForbidden,
				Code:    models.CodeAccountLocked,
				Message: "Account is locked",
				Data:    models.LockedResponse{LockedUntil: &lockedUntil},
			},
			wantStatus: http.StatusForbidden,
			wantCode:   models.CodeAccountLocked,
			wantData:   true,
		},
		{
			name:       "unexpected error hides detail",
			err:        errors.New("connection reset by peer"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   models.CodeInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := &handlers.MockAuthService{
				LoginFunc: func(ctx context.Context, req services.LoginRequest, info models.RequestInfo) (*models.LoginResult, error) {
					return nil, tt.err
				},
			}
			handler := handlers.NewAuthHandler(mockAuth, nil, nil)
			req := handlers.NewTestRequest(t, "POST", "/api/v1/auth/login", handlers.LoginRequest{
				Email:    "user@example.com",
				Password: "password123",
			})

			w := httptest.NewRecorder()
			handler.Login(w, req)

			env := handlers.AssertErrorCode(t, w, tt.wantStatus, tt.wantCode)
			assert.NotContains(t, w.Body.String(), "connection reset")
			if tt.wantData {
				assert.Contains(t, w.Body.String(), `"locked_until":"2026-05-01T12:00:00Z"`)
			} else {
				assert.Nil(t, env.Data)
			}
		})
	}
}

func TestRefresh_Success(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		RefreshFunc: func(ctx context.Context, user *models.AuthenticatedUser) (*models.RefreshResult, error) {
			assert.Equal(t, "user-1", user.ID)
			assert.Equal(t, "sess-1", user.SessionID)
			return &models.RefreshResult{AccessToken: "new_access"}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, nil)
	req := handlers.WithAuthContext(httptest.NewRequest("POST", "/api/v1/auth/refresh", nil), "user-1", "sess-1")

	w := httptest.NewRecorder()
	handler.Refresh(w, req)

	var resp models.RefreshResult
	env := handlers.DecodeEnvelope(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.CodeTokenRefreshed, env.Message)
	assert.Equal(t, "new_access", resp.AccessToken)
}

func TestRefresh_RequiresUser(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, nil, nil)
	req := httptest.NewRequest("POST", "/api/v1/auth/refresh", nil)

	w := httptest.NewRecorder()
	handler.Refresh(w, req)

	handlers.AssertErrorCode(t, w, http.StatusUnauthorized, models.CodeAuthorizationRequired)
}

func TestLogout_Success(t *testing.T) {
	loggedOut := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	mockAuth := &handlers.MockAuthService{
		LogoutFunc: func(ctx context.Context, user *models.AuthenticatedUser, info models.RequestInfo) (*models.LogoutResult, error) {
			return &models.LogoutResult{LoggedOutAt: loggedOut, SessionID: user.SessionID}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, nil)
	req := handlers.WithAuthContext(httptest.NewRequest("POST", "/api/v1/auth/logout", nil), "user-1", "sess-9")

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	var resp models.LogoutResult
	env := handlers.DecodeEnvelope(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.CodeLogoutSuccessful, env.Message)
	assert.Equal(t, "sess-9", resp.SessionID)
	assert.True(t, loggedOut.Equal(resp.LoggedOutAt))
}

func TestLogout_SessionError(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LogoutFunc: func(ctx context.Context, user *models.AuthenticatedUser, info models.RequestInfo) (*models.LogoutResult, error) {
			return nil, models.NewAuthError(http.StatusUnauthorized, models.CodeSessionNotFound, "Session not found")
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, nil)
	req := handlers.WithAuthContext(httptest.NewRequest("POST", "/api/v1/auth/logout", nil), "user-1", "sess-9")

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	env := handlers.AssertErrorCode(t, w, http.StatusUnauthorized, models.CodeSessionNotFound)
	require.NotEmpty(t, env.Error)
}
