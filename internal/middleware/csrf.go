package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/BradenHooton/posgate/internal/auth"
	"github.com/BradenHooton/posgate/internal/models"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
)

// CSRFHeader carries a token issued by GET /api/v1/csrf/token
const CSRFHeader = "X-CSRF-Token"

// CSRFConfig controls the origin and token checks
type CSRFConfig struct {
	AllowedOrigins []string
	IPConfig       *pkghttp.IPConfig
}

// CSRFProtection guards state-changing requests.
//   - An Origin (or Referer) from outside AllowedOrigins is rejected.
//   - A supplied X-CSRF-Token must be valid for the client IP.
//   - Cookie-bearing requests without an Authorization header must carry a
//     token, since a browser attaches cookies to cross-site requests on its own.
func CSRFProtection(csrfManager *auth.CSRFTokenManager, config CSRFConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(config.AllowedOrigins))
	for _, o := range config.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	reject := func(w http.ResponseWriter, r *http.Request, reason string) {
		logger.Warn("CSRF check failed",
			slog.String("reason", reason),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))
		pkghttp.WriteForbidden(w, models.CodeCSRFRejected, "Cross-site request rejected")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only protect state-changing methods
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if origin := requestOrigin(r); origin != "" && !allowed[origin] {
				reject(w, r, "origin_not_allowed")
				return
			}

			clientIP := pkghttp.ExtractClientIP(r, config.IPConfig)
			token := r.Header.Get(CSRFHeader)
			if token != "" {
				if !csrfManager.ValidateToken(token, clientIP) {
					reject(w, r, "token_invalid")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get("Authorization") == "" && r.Header.Get("Cookie") != "" {
				reject(w, r, "token_missing")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestOrigin returns scheme://host from Origin, falling back to Referer
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" && origin != "null" {
		return strings.TrimRight(origin, "/")
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return ""
}

// isStateChangingMethod checks if the HTTP method modifies state
func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}
