package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/posgate/internal/auth"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/BradenHooton/posgate/internal/services"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
)

// TwoFactorServiceInterface is the TOTP lifecycle and login challenge
type TwoFactorServiceInterface interface {
	Generate(ctx context.Context, userID string, info models.RequestInfo) (*models.TwoFactorSetupResponse, error)
	Enable(ctx context.Context, userID, code string, info models.RequestInfo) (*models.TwoFactorEnabledResponse, error)
	Disable(ctx context.Context, userID string, info models.RequestInfo) (*models.TwoFactorDisabledResponse, error)
	Verify(ctx context.Context, req services.VerifyRequest, info models.RequestInfo) (*models.LoginResult, error)
}

// TwoFactorHandler handles 2FA setup and verification
type TwoFactorHandler struct {
	service  TwoFactorServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

func NewTwoFactorHandler(service TwoFactorServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *TwoFactorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TwoFactorHandler{service: service, ipConfig: ipConfig, logger: logger}
}

// EnableTwoFactorRequest carries the first TOTP code for the pending secret
type EnableTwoFactorRequest struct {
	Code string `json:"code" validate:"required,totp"`
}

// VerifyTwoFactorRequest completes a login challenge. Code format depends
// on Type and is checked by validateVerifyCode.
type VerifyTwoFactorRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Type   string `json:"type" validate:"required,oneof=totp backup"`
	Code   string `json:"code" validate:"required"`
}

func (h *TwoFactorHandler) Generate(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, models.CodeAuthorizationRequired, "Authorization header is required")
		return
	}

	setup, err := h.service.Generate(r.Context(), user.ID, requestInfo(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteSuccess(w, http.StatusOK, models.CodeTwoFactorGenerated, setup)
}

func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, models.CodeAuthorizationRequired, "Authorization header is required")
		return
	}

	var req EnableTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Enable(r.Context(), user.ID, req.Code, requestInfo(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteSuccess(w, http.StatusOK, models.CodeTwoFactorEnabled, result)
}

func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, models.CodeAuthorizationRequired, "Authorization header is required")
		return
	}

	result, err := h.service.Disable(r.Context(), user.ID, requestInfo(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteSuccess(w, http.StatusOK, models.CodeTwoFactorDisabled, result)
}

// Verify completes the challenge issued by login and returns tokens
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Verify(r.Context(), services.VerifyRequest{
		UserID: req.UserID,
		Type:   req.Type,
		Code:   req.Code,
	}, requestInfo(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteSuccess(w, http.StatusOK, models.CodeTwoFactorVerified, result)
}
