package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// Counter is shared state across replicas; nil keeps counts in memory
	Counter  httprate.LimitCounter
	IPConfig *pkghttp.IPConfig
	Logger   *slog.Logger
}

// DefaultAuthRateLimit returns default rate limit config for auth endpoints (5 requests per minute)
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 5, Window: time.Minute}
}

// DefaultGlobalRateLimit allows 100 requests per 15 minutes per client
func DefaultGlobalRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 100, Window: 15 * time.Minute}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// The client IP honours forwarding headers only from trusted proxies.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []httprate.Option{
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteError(w, http.StatusTooManyRequests, models.CodeRateLimitExceeded, "Too many requests, please try again later")
		}),
		httprate.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("rate limit counter unavailable", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
		}),
	}
	if config.Counter != nil {
		opts = append(opts, httprate.WithLimitCounter(config.Counter))
	}

	return httprate.Limit(config.Requests, config.Window, opts...)
}
