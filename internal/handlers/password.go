package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/posgate/internal/models"
	"github.com/BradenHooton/posgate/internal/services"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
)

// PasswordResetServiceInterface is the forgot/validate/reset flow
type PasswordResetServiceInterface interface {
	Forgot(ctx context.Context, email string, info models.RequestInfo) error
	Validate(ctx context.Context, token string) (*models.ResetTokenStatus, error)
	Reset(ctx context.Context, req services.ResetPasswordRequest, info models.RequestInfo) (*models.PasswordResetResult, error)
}

type PasswordHandler struct {
	service  PasswordResetServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

func NewPasswordHandler(service PasswordResetServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *PasswordHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordHandler{service: service, ipConfig: ipConfig, logger: logger}
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// Forgot always answers with the same message so callers cannot probe
// which emails exist
func (h *PasswordHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.Forgot(r.Context(), req.Email, requestInfo(r, h.ipConfig)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteSuccess(w, http.StatusOK, models.CodePasswordResetSent, map[string]string{
		"message": "If the email exists, a password reset link has been sent",
	})
}

func (h *PasswordHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Validate(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteSuccess(w, http.StatusOK, models.CodeTokenValid, status)
}

func (h *PasswordHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Reset(r.Context(), services.ResetPasswordRequest{
		Token:           req.Token,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	}, requestInfo(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteSuccess(w, http.StatusOK, models.CodePasswordResetDone, result)
}
