package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/posgate/internal/auth"
	"github.com/BradenHooton/posgate/internal/models"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
)

// HealthChecker pings a dependency
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports liveness and database reachability
type HealthHandler struct {
	db     HealthChecker
	logger *slog.Logger
}

func NewHealthHandler(db HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		h.logger.Error("health check failed", slog.Any("error", err))
		pkghttp.WriteErrorWithData(w, http.StatusServiceUnavailable, models.CodeUnhealthy, "Database is unreachable", map[string]string{
			"status":   "degraded",
			"service":  "POS API Gateway",
			"database": "down",
		})
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, models.CodeHealthy, map[string]string{
		"status":   "running",
		"service":  "POS API Gateway",
		"database": "up",
	})
}

// CSRFHandler issues CSRF tokens bound to the caller's IP
type CSRFHandler struct {
	manager  *auth.CSRFTokenManager
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

func NewCSRFHandler(manager *auth.CSRFTokenManager, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *CSRFHandler {
	return &CSRFHandler{manager: manager, ipConfig: ipConfig, logger: logger}
}

func (h *CSRFHandler) Token(w http.ResponseWriter, r *http.Request) {
	token, err := h.manager.GenerateToken(pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		h.logger.Error("failed to generate CSRF token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred while generating CSRF token")
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, models.CodeCSRFTokenIssued, map[string]any{
		"csrf_token": token,
		"expires_in": int(h.manager.TTL().Seconds()),
	})
}
