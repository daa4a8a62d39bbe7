package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/posgate/internal/handlers"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/BradenHooton/posgate/internal/services"
	pkgauth "github.com/BradenHooton/posgate/pkg/auth"
	"github.com/stretchr/testify/assert"
)

func TestForgotPassword_AlwaysSameAnswer(t *testing.T) {
	var gotEmail string
	mockReset := &handlers.MockPasswordResetService{
		ForgotFunc: func(ctx context.Context, email string, info models.RequestInfo) error {
			gotEmail = email
			return nil
		},
	}

	handler := handlers.NewPasswordHandler(mockReset, nil, nil)
	req := handlers.NewTestRequest(t, "POST", "/api/v1/auth/forgot-password", handlers.ForgotPasswordRequest{
		Email: "nobody@example.com",
	})

	w := httptest.NewRecorder()
	handler.Forgot(w, req)

	var resp map[string]string
	env := handlers.DecodeEnvelope(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.CodePasswordResetSent, env.Message)
	assert.Equal(t, "If the email exists, a password reset link has been sent", resp["message"])
	assert.Equal(t, "nobody@example.com", gotEmail)
}

func TestForgotPassword_InvalidEmail(t *testing.T) {
	handler := handlers.NewPasswordHandler(&handlers.MockPasswordResetService{}, nil, nil)
	req := handlers.NewTestRequest(t, "POST", "/api/v1/auth/forgot-password", handlers.ForgotPasswordRequest{
		Email: "nope",
	})

	w := httptest.NewRecorder()
	handler.Forgot(w, req)

	handlers.AssertValidationField(t, w, "email")
}

func TestValidateResetToken(t *testing.T) {
	expires := time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "valid", wantStatus: http.StatusOK, wantCode: models.CodeTokenValid},
		{
			name:       "expired",
			err:        models.NewAuthError(http.StatusGone, models.CodeTokenExpired, "Reset token has expired"),
			wantStatus: http.StatusGone,
			wantCode:   models.CodeTokenExpired,
		},
		{
			name:       "unknown",
			err:        models.NewAuthError(http.StatusNotFound, models.CodeTokenNotFound, "Invalid reset token"),
			wantStatus: http.StatusNotFound,
			wantCode:   models.CodeTokenNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockReset := &handlers.MockPasswordResetService{
				ValidateFunc: func(ctx context.Context, token string) (*models.ResetTokenStatus, error) {
					assert.Equal(t, "tok-1", token)
					if tt.err != nil {
						return nil, tt.err
					}
					return &models.ResetTokenStatus{TokenValid: true, UserID: "user-1", ExpiresAt: expires}, nil
				},
			}
			handler := handlers.NewPasswordHandler(mockReset, nil, nil)
			req := httptest.NewRequest("GET", "/api/v1/auth/validate-reset-token?token=tok-1", nil)

			w := httptest.NewRecorder()
			handler.ValidateToken(w, req)

			env := handlers.DecodeEnvelope(t, w, tt.wantStatus, nil)
			assert.Equal(t, tt.wantCode, env.Message)
			assert.Equal(t, tt.err == nil, env.Success)
		})
	}
}

func TestResetPassword_Success(t *testing.T) {
	resetAt := time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC)
	mockReset := &handlers.MockPasswordResetService{
		ResetFunc: func(ctx context.Context, req services.ResetPasswordRequest, info models.RequestInfo) (*models.PasswordResetResult, error) {
			assert.Equal(t, "tok-1", req.Token)
			assert.Equal(t, "NewSecurePass456!", req.NewPassword)
			return &models.PasswordResetResult{UserID: "user-1", ResetAt: resetAt}, nil
		},
	}

	handler := handlers.NewPasswordHandler(mockReset, nil, nil)
	req := handlers.NewTestRequest(t, "POST", "/api/v1/auth/reset-password", handlers.ResetPasswordRequest{
		Token:           "tok-1",
		NewPassword:     "NewSecurePass456!",
		ConfirmPassword: "NewSecurePass456!",
	})

	w := httptest.NewRecorder()
	handler.Reset(w, req)

	var resp models.PasswordResetResult
	env := handlers.DecodeEnvelope(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.CodePasswordResetDone, env.Message)
	assert.Equal(t, "user-1", resp.UserID)
}

func TestResetPassword_ShortPasswordRejectedBeforeService(t *testing.T) {
	mockReset := &handlers.MockPasswordResetService{
		ResetFunc: func(ctx context.Context, req services.ResetPasswordRequest, info models.RequestInfo) (*models.PasswordResetResult, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}

	handler := handlers.NewPasswordHandler(mockReset, nil, nil)
	req := handlers.NewTestRequest(t, "POST", "/api/v1/auth/reset-password", handlers.ResetPasswordRequest{
		Token:           "tok-1",
		NewPassword:     "short",
		ConfirmPassword: "short",
	})

	w := httptest.NewRecorder()
	handler.Reset(w, req)

	handlers.AssertValidationField(t, w, "new_password")
}

func TestResetPassword_ServiceValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		field string
	}{
		{
			name:  "weak password",
			err:   &pkgauth.PasswordValidationError{Errors: []string{"must contain a digit"}},
			field: "new_password",
		},
		{
			name:  "mismatch",
			err:   services.ErrPasswordMismatch,
			field: "confirm_password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockReset := &handlers.MockPasswordResetService{
				ResetFunc: func(ctx context.Context, req services.ResetPasswordRequest, info models.RequestInfo) (*models.PasswordResetResult, error) {
					return nil, tt.err
				},
			}
			handler := handlers.NewPasswordHandler(mockReset, nil, nil)
			req := handlers.NewTestRequest(t, "POST", "/api/v1/auth/reset-password", handlers.ResetPasswordRequest{
				Token:           "tok-1",
				NewPassword:     "longenough",
				ConfirmPassword: "longenough",
			})

			w := httptest.NewRecorder()
			handler.Reset(w, req)

			handlers.AssertValidationField(t, w, tt.field)
		})
	}
}

func TestResetPassword_TokenAlreadyUsed(t *testing.T) {
	mockReset := &handlers.MockPasswordResetService{
		ResetFunc: func(ctx context.Context, req services.ResetPasswordRequest, info models.RequestInfo) (*models.PasswordResetResult, error) {
			return nil, models.NewAuthError(http.StatusGone, models.CodeTokenAlreadyUsed, "Reset token has already been used")
		},
	}

	handler := handlers.NewPasswordHandler(mockReset, nil, nil)
	req := handlers.NewTestRequest(t, "POST", "/api/v1/auth/reset-password", handlers.ResetPasswordRequest{
		Token:           "tok-1",
		NewPassword:     "NewSecurePass456!",
		ConfirmPassword: "NewSecurePass456!",
	})

	w := httptest.NewRecorder()
	handler.Reset(w, req)

	handlers.AssertErrorCode(t, w, http.StatusGone, models.CodeTokenAlreadyUsed)
}
