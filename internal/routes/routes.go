package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/posgate/internal/auth"
	"github.com/BradenHooton/posgate/internal/handlers"
	"github.com/BradenHooton/posgate/internal/middleware"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/go-chi/chi/v5"
)

// Dependencies are the handlers and auth collaborators the routes need
type Dependencies struct {
	Auth      *handlers.AuthHandler
	Password  *handlers.PasswordHandler
	TwoFactor *handlers.TwoFactorHandler
	Health    *handlers.HealthHandler
	CSRF      *handlers.CSRFHandler

	// Forwarder receives every /api/v1 request the gateway does not answer itself
	Forwarder http.Handler

	Issuer      *auth.TokenIssuer
	Users       auth.UserLookup
	Sessions    auth.SessionValidator
	Permissions *auth.PermissionResolver

	// AuthRateLimit is applied on top of the global limiter to public auth routes
	AuthRateLimit middleware.RateLimitConfig
	Logger        *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.NotFound(middleware.NotFound)
	router.MethodNotAllowed(middleware.MethodNotAllowed)

	requireAccess := auth.RequireAuth(deps.Issuer, deps.Users, deps.Sessions, deps.Logger, models.TokenTypeAccess)
	requireAnyToken := auth.RequireAuth(deps.Issuer, deps.Users, deps.Sessions, deps.Logger, models.TokenTypeAccess, models.TokenTypeRefresh)
	authLimit := middleware.RateLimitByIP(deps.AuthRateLimit)

	router.Get("/health", deps.Health.Health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/csrf/token", deps.CSRF.Token)

		r.Route("/auth", func(r chi.Router) {
			// Public routes - no authentication required
			r.Group(func(r chi.Router) {
				r.Use(authLimit)
				r.Post("/login", deps.Auth.Login)
				r.Post("/forgot-password", deps.Password.Forgot)
				r.Get("/validate-reset-token", deps.Password.ValidateToken)
				r.Post("/reset-password", deps.Password.Reset)
				r.Post("/2fa/verify", deps.TwoFactor.Verify)
			})

			// A refresh token is accepted here and nowhere else
			r.With(requireAnyToken).Post("/refresh", deps.Auth.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(requireAccess)
				r.Post("/logout", deps.Auth.Logout)
				r.Post("/2fa/generate", deps.TwoFactor.Generate)
				r.Post("/2fa/enable", deps.TwoFactor.Enable)
				r.Post("/2fa/disable", deps.TwoFactor.Disable)
			})
		})

		r.Handle("/public", deps.Forwarder)
		r.Handle("/public/*", deps.Forwarder)

		// Everything else is a POS backend route
		r.Group(func(r chi.Router) {
			r.Use(requireAccess)
			r.Use(deps.Permissions.RequirePermission())
			r.Handle("/*", deps.Forwarder)
		})
	})
}
