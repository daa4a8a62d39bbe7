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

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, req services.LoginRequest, info models.RequestInfo) (*models.LoginResult, error)
	Refresh(ctx context.Context, user *models.AuthenticatedUser) (*models.RefreshResult, error)
	Logout(ctx context.Context, user *models.AuthenticatedUser, info models.RequestInfo) (*models.LogoutResult, error)
}

// AuthHandler handles login, refresh and logout
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{service: service, ipConfig: ipConfig, logger: logger}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

// Login handles password login. Users with 2FA enabled get a challenge
// instead of tokens.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	}, requestInfo(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if result.Requires2FA {
		pkghttp.WriteSuccess(w, http.StatusOK, models.CodeTwoFactorRequired, result)
		return
	}
	pkghttp.WriteSuccess(w, http.StatusOK, models.CodeLoginSuccessful, result)
}

// Refresh mints a new access token for the session on the bearer token
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, models.CodeAuthorizationRequired, "Authorization header is required")
		return
	}

	result, err := h.service.Refresh(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteSuccess(w, http.StatusOK, models.CodeTokenRefreshed, result)
}

// Logout deactivates the session on the bearer token
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r)
	if user == nil {
		pkghttp.WriteUnauthorized(w, models.CodeAuthorizationRequired, "Authorization header is required")
		return
	}

	result, err := h.service.Logout(r.Context(), user, requestInfo(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteSuccess(w, http.StatusOK, models.CodeLogoutSuccessful, result)
}
