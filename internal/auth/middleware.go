package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/posgate/internal/models"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing the authenticated user in context
	UserContextKey contextKey = "user"
)

const bearerPrefix = "Bearer "

// UserLookup fetches the current state of a token subject
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// SessionValidator checks that a session is usable by userID. An empty reason
// means the session is valid.
type SessionValidator interface {
	Validate(ctx context.Context, sessionID, userID string) (reason string, err error)
}

// RequireAuth validates the bearer token, the user and the session, then
// injects the authenticated user into context. Protected routes pass
// models.TokenTypeAccess; the refresh route also accepts refresh tokens.
func RequireAuth(issuer *TokenIssuer, users UserLookup, sessions SessionValidator, logger *slog.Logger, allowedTypes ...string) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, models.CodeAuthorizationRequired, "Authorization header is required")
				return
			}

			if !strings.HasPrefix(authHeader, bearerPrefix) {
				pkghttp.WriteUnauthorized(w, models.CodeInvalidTokenFormat, "Authorization header must use the Bearer scheme")
				return
			}

			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
			if tokenString == "" {
				pkghttp.WriteUnauthorized(w, models.CodeTokenMissing, "Access token is missing")
				return
			}

			claims, err := issuer.Verify(r.Context(), tokenString, allowedTypes...)
			if err != nil {
				var tokenErr *TokenError
				if errors.As(err, &tokenErr) {
					pkghttp.WriteUnauthorized(w, tokenErr.Reason, tokenMessage(tokenErr.Reason))
					return
				}
				logger.Error("token verification failed", slog.Any("error", err))
				pkghttp.WriteInternalError(w, "Authentication failed")
				return
			}

			user, err := users.GetByID(r.Context(), claims.UserID())
			if err != nil && !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrBadRequest) {
				logger.Error("failed to load token subject",
					slog.String("user_id", claims.UserID()),
					slog.Any("error", err),
				)
				pkghttp.WriteInternalError(w, "Authentication failed")
				return
			}
			if user == nil || !user.IsActive {
				pkghttp.WriteUnauthorized(w, models.CodeUserNotFound, "User not found or inactive")
				return
			}

			reason, err := sessions.Validate(r.Context(), claims.SessionID, user.ID)
			if err != nil {
				logger.Error("session validation failed",
					slog.String("session_id", claims.SessionID),
					slog.Any("error", err),
				)
				pkghttp.WriteInternalError(w, "Session validation failed")
				return
			}
			if reason != "" {
				pkghttp.WriteUnauthorized(w, reason, sessionMessage(reason))
				return
			}

			authUser := &models.AuthenticatedUser{
				ID:        user.ID,
				Email:     user.Email,
				Name:      user.DisplayName(),
				RoleID:    user.RoleID,
				RoleName:  user.RoleName,
				SessionID: claims.SessionID,
				Claims:    claims,
			}

			ctx := context.WithValue(r.Context(), UserContextKey, authUser)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext returns the user injected by RequireAuth, or nil
func GetUserFromContext(r *http.Request) *models.AuthenticatedUser {
	return UserFromContext(r.Context())
}

// UserFromContext is GetUserFromContext for code that only holds a context
func UserFromContext(ctx context.Context) *models.AuthenticatedUser {
	user, ok := ctx.Value(UserContextKey).(*models.AuthenticatedUser)
	if !ok {
		return nil
	}
	return user
}

// WithUser stores an authenticated user; used by tests and internal callers
func WithUser(ctx context.Context, user *models.AuthenticatedUser) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

func tokenMessage(reason string) string {
	switch reason {
	case models.CodeTokenExpired:
		return "Access token has expired"
	case models.CodeInvalidTokenPayload:
		return "Token payload is missing required claims"
	default:
		return "Invalid access token"
	}
}

func sessionMessage(reason string) string {
	switch reason {
	case models.CodeSessionNotFound:
		return "Session not found"
	case models.CodeSessionInactive:
		return "Session is no longer active"
	case models.CodeSessionExpired:
		return "Session has expired"
	case models.CodeSessionUserMismatch:
		return "Session does not belong to this user"
	default:
		return "Invalid session"
	}
}
