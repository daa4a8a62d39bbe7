package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUsers struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.User, error)
}

func (m *mockUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

type mockSessions struct {
	ValidateFunc func(ctx context.Context, sessionID, userID string) (string, error)
}

func (m *mockSessions) Validate(ctx context.Context, sessionID, userID string) (string, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, sessionID, userID)
	}
	return "", nil
}

func activeUser() *models.User {
	s := testSubject()
	return &models.User{
		ID:        s.UserID,
		FirstName: "Casey",
		LastName:  "Cashier",
		Email:     s.Email,
		RoleID:    s.RoleID,
		RoleName:  s.RoleName,
		IsActive:  true,
	}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) pkghttp.Envelope {
	t.Helper()
	var env pkghttp.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func runAuth(t *testing.T, ti *TokenIssuer, users UserLookup, sessions SessionValidator, header string) (*httptest.ResponseRecorder, *models.AuthenticatedUser) {
	t.Helper()
	var seen *models.AuthenticatedUser
	handler := RequireAuth(ti, users, sessions, nil, models.TokenTypeAccess)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestRequireAuth_Success(t *testing.T) {
	ti := newTestIssuer(time.Now())
	token, err := ti.IssueAccessToken(context.Background(), testSubject())
	require.NoError(t, err)

	var validatedSession, validatedUser string
	sessions := &mockSessions{ValidateFunc: func(_ context.Context, sessionID, userID string) (string, error) {
		validatedSession, validatedUser = sessionID, userID
		return "", nil
	}}
	users := &mockUsers{GetByIDFunc: func(context.Context, string) (*models.User, error) { return activeUser(), nil }}

	rec, user := runAuth(t, ti, users, sessions, "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, testSubject().UserID, user.ID)
	assert.Equal(t, "Casey Cashier", user.Name)
	assert.Equal(t, "session-abc", user.SessionID)
	assert.Equal(t, "session-abc", validatedSession)
	assert.Equal(t, testSubject().UserID, validatedUser)
}

func TestRequireAuth_HeaderFailures(t *testing.T) {
	ti := newTestIssuer(time.Now())

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"no header", "", models.CodeAuthorizationRequired},
		{"basic scheme", "Basic dXNlcjpwYXNz", models.CodeInvalidTokenFormat},
		{"lowercase bearer", "bearer abc", models.CodeInvalidTokenFormat},
		{"empty token", "Bearer    ", models.CodeTokenMissing},
		{"garbage token", "Bearer not.a.jwt", models.CodeTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, user := runAuth(t, ti, &mockUsers{}, &mockSessions{}, tt.header)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, user)
			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Message)
		})
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	issued := time.Now().Add(-3 * time.Hour)
	ti := newTestIssuer(issued)
	token, err := ti.IssueAccessToken(context.Background(), testSubject())
	require.NoError(t, err)
	ti.now = time.Now

	rec, _ := runAuth(t, ti, &mockUsers{}, &mockSessions{}, "Bearer "+token)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, models.CodeTokenExpired, decodeEnvelope(t, rec).Message)
}

func TestRequireAuth_RejectsRefreshToken(t *testing.T) {
	ti := newTestIssuer(time.Now())
	pair, err := ti.IssuePair(context.Background(), testSubject(), false)
	require.NoError(t, err)

	rec, _ := runAuth(t, ti, &mockUsers{}, &mockSessions{}, "Bearer "+pair.RefreshToken)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, models.CodeTokenInvalid, decodeEnvelope(t, rec).Message)
}

func TestRequireAuth_UserChecks(t *testing.T) {
	ti := newTestIssuer(time.Now())
	token, err := ti.IssueAccessToken(context.Background(), testSubject())
	require.NoError(t, err)

	inactive := activeUser()
	inactive.IsActive = false

	tests := []struct {
		name   string
		lookup func(context.Context, string) (*models.User, error)
		status int
		code   string
	}{
		{"missing user", func(context.Context, string) (*models.User, error) { return nil, models.ErrNotFound }, http.StatusUnauthorized, models.CodeUserNotFound},
		{"inactive user", func(context.Context, string) (*models.User, error) { return inactive, nil }, http.StatusUnauthorized, models.CodeUserNotFound},
		{"database failure", func(context.Context, string) (*models.User, error) { return nil, errors.New("connection reset") }, http.StatusInternalServerError, models.CodeInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := runAuth(t, ti, &mockUsers{GetByIDFunc: tt.lookup}, &mockSessions{}, "Bearer "+token)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeEnvelope(t, rec).Message)
		})
	}
}

func TestRequireAuth_SessionReasons(t *testing.T) {
	ti := newTestIssuer(time.Now())
	token, err := ti.IssueAccessToken(context.Background(), testSubject())
	require.NoError(t, err)
	users := &mockUsers{GetByIDFunc: func(context.Context, string) (*models.User, error) { return activeUser(), nil }}

	reasons := []string{
		models.CodeSessionNotFound,
		models.CodeSessionInactive,
		models.CodeSessionExpired,
		models.CodeSessionUserMismatch,
	}

	for _, reason := range reasons {
		t.Run(reason, func(t *testing.T) {
			sessions := &mockSessions{ValidateFunc: func(context.Context, string, string) (string, error) {
				return reason, nil
			}}

			rec, user := runAuth(t, ti, users, sessions, "Bearer "+token)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, user)
			assert.Equal(t, reason, decodeEnvelope(t, rec).Message)
		})
	}
}

func TestRequireAuth_SessionLookupError(t *testing.T) {
	ti := newTestIssuer(time.Now())
	token, err := ti.IssueAccessToken(context.Background(), testSubject())
	require.NoError(t, err)

	users := &mockUsers{GetByIDFunc: func(context.Context, string) (*models.User, error) { return activeUser(), nil }}
	sessions := &mockSessions{ValidateFunc: func(context.Context, string, string) (string, error) {
		return "", errors.New("timeout")
	}}

	rec, _ := runAuth(t, ti, users, sessions, "Bearer "+token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetUserFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, GetUserFromContext(req))

	user := &models.AuthenticatedUser{ID: "u1"}
	req = req.WithContext(WithUser(req.Context(), user))
	assert.Same(t, user, GetUserFromContext(req))
}
