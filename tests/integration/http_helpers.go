package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/posgate/internal/auth"
	"github.com/BradenHooton/posgate/internal/database"
	"github.com/BradenHooton/posgate/internal/gateway"
	"github.com/BradenHooton/posgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/posgate/internal/middleware"
	"github.com/BradenHooton/posgate/internal/queue"
	"github.com/BradenHooton/posgate/internal/repositories"
	"github.com/BradenHooton/posgate/internal/routes"
	"github.com/BradenHooton/posgate/internal/services"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
	pkglogger "github.com/BradenHooton/posgate/pkg/logger"
)

const (
	jwtSecretName     = "JWT_AUTH_SECRET"
	gatewaySecretName = "GATEWAY_SECRET"
)

// TestServer is the full gateway over a real database. Notifications stay
// on an in-memory queue the test can inspect.
type TestServer struct {
	Server        *httptest.Server
	DB            *database.DB
	Notifications *queue.MemoryQueue
	Backend       *httptest.Server
}

// NewTestServer wires the gateway the way cmd/api does
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	auditLogger := pkglogger.NewAuditLogger(logger)

	secrets := services.NewSecretCache(services.NewEnvSecretSource(map[string]string{
		jwtSecretName:     "integration-jwt-secret-0123456789abcdef",
		gatewaySecretName: "integration-gateway-secret-0123456789",
	}), time.Hour, logger)

	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	statsRepo := repositories.NewLoginStatisticsRepository(db)
	activityRepo := repositories.NewActivityLogRepository(db)

	notifications := queue.NewMemoryQueue(100)
	notifier, err := services.NewNotificationService(notifications, services.NotificationConfig{
		FromAddress: "no-reply@pos.example.com",
		FromName:    "POS Platform",
		FrontendURL: "https://app.pos.example.com",
	}, logger)
	if err != nil {
		panic(err)
	}

	tokenIssuer := auth.NewTokenIssuer(secrets, auth.TokenIssuerConfig{
		SecretName:       jwtSecretName,
		Issuer:           "http://gateway.test",
		AccessExpiry:     15 * time.Minute,
		SessionExpiry:    8 * time.Hour,
		RememberMeExpiry: 30 * 24 * time.Hour,
	})

	sessionService := services.NewSessionService(sessionRepo, statsRepo, activityRepo, services.SessionPolicy{
		SessionExpiry:    8 * time.Hour,
		RememberMeExpiry: 30 * 24 * time.Hour,
	}, logger, auditLogger)
	lockout := services.NewLockoutTracker(userRepo, statsRepo, activityRepo, services.LockoutPolicy{
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
	}, logger, auditLogger)
	authService := services.NewAuthService(userRepo, lockout, sessionService, tokenIssuer, logger, auditLogger)
	resetService := services.NewPasswordResetService(userRepo, repositories.NewPasswordResetRepository(db), activityRepo, notifier, time.Hour, logger, auditLogger)
	twoFactorService := services.NewTwoFactorService(userRepo, repositories.NewTwoFactorRepository(db), auth.NewTOTPManager("POS Platform"), authService, activityRepo, notifier, services.TwoFactorPolicy{
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		BackupCodeCount:   10,
	}, logger, auditLogger)

	// Backend echoes the identity headers it received
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"path":    r.URL.Path,
			"user_id": r.Header.Get("X-User-Id"),
		})
	}))
	signer := auth.NewGatewaySigner(secrets, auth.GatewaySignerConfig{
		SecretName: gatewaySecretName,
		Issuer:     "http://gateway.test",
		Audience:   backend.URL,
		Expiry:     5 * time.Minute,
	})
	forwarder, err := gateway.NewForwarder(backend.URL, signer, nil, logger)
	if err != nil {
		panic(err)
	}

	csrfManager := auth.NewCSRFTokenManager(time.Hour)
	ipConfig := &pkghttp.IPConfig{}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(middlewareCustom.CSRFProtection(csrfManager, middlewareCustom.CSRFConfig{IPConfig: ipConfig}, logger))
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, routes.Dependencies{
		Auth:          handlers.NewAuthHandler(authService, ipConfig, logger),
		Password:      handlers.NewPasswordHandler(resetService, ipConfig, logger),
		TwoFactor:     handlers.NewTwoFactorHandler(twoFactorService, ipConfig, logger),
		Health:        handlers.NewHealthHandler(db, logger),
		CSRF:          handlers.NewCSRFHandler(csrfManager, ipConfig, logger),
		Forwarder:     forwarder,
		Issuer:        tokenIssuer,
		Users:         userRepo,
		Sessions:      sessionService,
		Permissions:   auth.NewPermissionResolver(userRepo, repositories.NewPermissionRepository(db), logger),
		AuthRateLimit: middlewareCustom.RateLimitConfig{Requests: 1000, Window: time.Minute, IPConfig: ipConfig},
		Logger:        logger,
	})

	return &TestServer{
		Server:        httptest.NewServer(r),
		DB:            db,
		Notifications: notifications,
		Backend:       backend,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.Backend != nil {
		ts.Backend.Close()
	}
	ts.Notifications.Close()
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// Envelope is the decoded response body with data left raw
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// ParseEnvelope decodes the response envelope and, when target is non-nil,
// its data field
func ParseEnvelope(resp *http.Response, target interface{}) (*Envelope, error) {
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return nil, fmt.Errorf("failed to parse data: %w", err)
		}
	}
	return &env, nil
}

func decodeJSON(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
