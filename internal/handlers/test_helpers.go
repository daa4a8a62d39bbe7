package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/posgate/internal/auth"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/BradenHooton/posgate/internal/services"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext attaches an authenticated user the way RequireAuth does
func WithAuthContext(req *http.Request, userID, sessionID string) *http.Request {
	user := &models.AuthenticatedUser{
		ID:        userID,
		Email:     "jane@example.com",
		Name:      "Jane Doe",
		RoleID:    2,
		RoleName:  "cashier",
		SessionID: sessionID,
	}
	return req.WithContext(auth.WithUser(req.Context(), user))
}

// DecodeEnvelope checks status and content type and decodes the envelope.
// When data is non-nil the envelope's data field is decoded into it.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, data interface{}) pkghttp.Envelope {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var raw struct {
		pkghttp.Envelope
		Data json.RawMessage `json:"data,omitempty"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw), "body: %s", w.Body.String())
	if data != nil {
		require.NotEmpty(t, raw.Data, "envelope has no data")
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.Envelope
}

// AssertErrorCode checks an error envelope's status and code
func AssertErrorCode(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, code string) pkghttp.Envelope {
	t.Helper()
	env := DecodeEnvelope(t, w, expectedStatus, nil)
	assert.False(t, env.Success)
	assert.Equal(t, code, env.Message)
	return env
}

// AssertValidationField checks a 400 validation envelope names field
func AssertValidationField(t *testing.T, w *httptest.ResponseRecorder, field string) {
	t.Helper()
	env := AssertErrorCode(t, w, http.StatusBadRequest, models.CodeValidationError)
	fields := make([]string, 0, len(env.ValidationErrors))
	for _, fe := range env.ValidationErrors {
		fields = append(fields, fe.Field)
	}
	assert.Contains(t, fields, field)
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc   func(ctx context.Context, req services.LoginRequest, info models.RequestInfo) (*models.LoginResult, error)
	RefreshFunc func(ctx context.Context, user *models.AuthenticatedUser) (*models.RefreshResult, error)
	LogoutFunc  func(ctx context.Context, user *models.AuthenticatedUser, info models.RequestInfo) (*models.LogoutResult, error)
}

func (m *MockAuthService) Login(ctx context.Context, req services.LoginRequest, info models.RequestInfo) (*models.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.LoginFunc(ctx, req, info)
}

func (m *MockAuthService) Refresh(ctx context.Context, user *models.AuthenticatedUser) (*models.RefreshResult, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.RefreshFunc(ctx, user)
}

func (m *MockAuthService) Logout(ctx context.Context, user *models.AuthenticatedUser, info models.RequestInfo) (*models.LogoutResult, error) {
	if m.LogoutFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.LogoutFunc(ctx, user, info)
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	ForgotFunc   func(ctx context.Context, email string, info models.RequestInfo) error
	ValidateFunc func(ctx context.Context, token string) (*models.ResetTokenStatus, error)
	ResetFunc    func(ctx context.Context, req services.ResetPasswordRequest, info models.RequestInfo) (*models.PasswordResetResult, error)
}

func (m *MockPasswordResetService) Forgot(ctx context.Context, email string, info models.RequestInfo) error {
	if m.ForgotFunc == nil {
		return nil
	}
	return m.ForgotFunc(ctx, email, info)
}

func (m *MockPasswordResetService) Validate(ctx context.Context, token string) (*models.ResetTokenStatus, error) {
	if m.ValidateFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.ValidateFunc(ctx, token)
}

func (m *MockPasswordResetService) Reset(ctx context.Context, req services.ResetPasswordRequest, info models.RequestInfo) (*models.PasswordResetResult, error) {
	if m.ResetFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.ResetFunc(ctx, req, info)
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	GenerateFunc func(ctx context.Context, userID string, info models.RequestInfo) (*models.TwoFactorSetupResponse, error)
	EnableFunc   func(ctx context.Context, userID, code string, info models.RequestInfo) (*models.TwoFactorEnabledResponse, error)
	DisableFunc  func(ctx context.Context, userID string, info models.RequestInfo) (*models.TwoFactorDisabledResponse, error)
	VerifyFunc   func(ctx context.Context, req services.VerifyRequest, info models.RequestInfo) (*models.LoginResult, error)
}

func (m *MockTwoFactorService) Generate(ctx context.Context, userID string, info models.RequestInfo) (*models.TwoFactorSetupResponse, error) {
	if m.GenerateFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.GenerateFunc(ctx, userID, info)
}

func (m *MockTwoFactorService) Enable(ctx context.Context, userID, code string, info models.RequestInfo) (*models.TwoFactorEnabledResponse, error) {
	if m.EnableFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.EnableFunc(ctx, userID, code, info)
}

func (m *MockTwoFactorService) Disable(ctx context.Context, userID string, info models.RequestInfo) (*models.TwoFactorDisabledResponse, error) {
	if m.DisableFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.DisableFunc(ctx, userID, info)
}

func (m *MockTwoFactorService) Verify(ctx context.Context, req services.VerifyRequest, info models.RequestInfo) (*models.LoginResult, error) {
	if m.VerifyFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.VerifyFunc(ctx, req, info)
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}
