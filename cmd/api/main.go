package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/posgate/internal/auth"
	"github.com/BradenHooton/posgate/internal/background"
	"github.com/BradenHooton/posgate/internal/config"
	"github.com/BradenHooton/posgate/internal/database"
	"github.com/BradenHooton/posgate/internal/gateway"
	"github.com/BradenHooton/posgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/posgate/internal/middleware"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/BradenHooton/posgate/internal/queue"
	"github.com/BradenHooton/posgate/internal/repositories"
	"github.com/BradenHooton/posgate/internal/routes"
	"github.com/BradenHooton/posgate/internal/services"
	pkgauth "github.com/BradenHooton/posgate/pkg/auth"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
	pkglogger "github.com/BradenHooton/posgate/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gateway stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Initialize database
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Secrets
	secretSource, err := newSecretSource(ctx, cfg)
	if err != nil {
		return err
	}
	secrets := services.NewSecretCache(secretSource, cfg.Secrets.TTL, logger)

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	statsRepo := repositories.NewLoginStatisticsRepository(db)
	activityRepo := repositories.NewActivityLogRepository(db)
	resetRepo := repositories.NewPasswordResetRepository(db)
	twoFactorRepo := repositories.NewTwoFactorRepository(db)
	permissionRepo := repositories.NewPermissionRepository(db)

	// Notifications
	notifyQueue, err := newQueue(cfg, logger)
	if err != nil {
		return err
	}
	defer notifyQueue.Close()

	emailSender, smsSender, err := newSenders(ctx, cfg, secrets, logger)
	if err != nil {
		return err
	}

	notifier, err := services.NewNotificationService(notifyQueue, services.NotificationConfig{
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		FrontendURL: cfg.Auth.FrontendURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifications: %w", err)
	}

	worker := background.NewNotificationWorker(notifyQueue, emailSender, smsSender, background.WorkerConfig{
		RatePerSecond: cfg.Notify.RatePerSecond,
		Burst:         cfg.Notify.Burst,
		MaxRetries:    cfg.Notify.MaxRetries,
		RetryBackoff:  cfg.Notify.RetryBackoff,
	}, logger)

	// Tokens
	tokenIssuer := auth.NewTokenIssuer(secrets, auth.TokenIssuerConfig{
		SecretName:       cfg.Secrets.JWTSecretName,
		Issuer:           cfg.Auth.APIBaseURL,
		AccessExpiry:     cfg.Auth.AccessTokenExpiry,
		SessionExpiry:    cfg.Auth.SessionExpiry,
		RememberMeExpiry: cfg.Auth.RememberMeExpiry,
	})
	gatewaySigner := auth.NewGatewaySigner(secrets, auth.GatewaySignerConfig{
		SecretName: cfg.Secrets.GatewaySecretName,
		Issuer:     cfg.Gateway.GatewayURL,
		Audience:   cfg.Gateway.BackendURL,
		Expiry:     cfg.Gateway.TokenExpiry,
	})

	// Initialize services
	auditLogger := pkglogger.NewAuditLogger(logger)

	sessionService := services.NewSessionService(sessionRepo, statsRepo, activityRepo, services.SessionPolicy{
		SessionExpiry:    cfg.Auth.SessionExpiry,
		RememberMeExpiry: cfg.Auth.RememberMeExpiry,
	}, logger, auditLogger)
	lockout := services.NewLockoutTracker(userRepo, statsRepo, activityRepo, services.LockoutPolicy{
		MaxFailedAttempts: cfg.Auth.MaxFailedLogins,
		LockoutDuration:   cfg.Auth.LockoutDuration,
	}, logger, auditLogger)
	authService := services.NewAuthService(userRepo, lockout, sessionService, tokenIssuer, logger, auditLogger)
	resetService := services.NewPasswordResetService(userRepo, resetRepo, activityRepo, notifier, cfg.Auth.ResetTokenExpiry, logger, auditLogger)
	twoFactorService := services.NewTwoFactorService(userRepo, twoFactorRepo, auth.NewTOTPManager(cfg.TwoFactor.Issuer), authService, activityRepo, notifier, services.TwoFactorPolicy{
		MaxFailedAttempts: cfg.TwoFactor.MaxFailedAttempts,
		LockoutDuration:   cfg.TwoFactor.LockoutDuration,
		BackupCodeCount:   cfg.TwoFactor.BackupCodeCount,
	}, logger, auditLogger)

	// Bootstrap first admin user if configured
	bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := ensureAdminUser(bootstrapCtx, userRepo, cfg.Auth, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Forwarding
	forwarder, err := gateway.NewForwarder(cfg.Gateway.BackendURL, gatewaySigner, newBackendTransport(), logger)
	if err != nil {
		return fmt.Errorf("invalid POS_BACKEND_URL: %w", err)
	}
	if !forwarder.Configured() {
		logger.Warn("POS_BACKEND_URL not set; forwarded routes will answer 503")
	}

	// Rate limiting, shared through Redis when configured
	globalLimit := middlewareCustom.DefaultGlobalRateLimit()
	globalLimit.Requests, globalLimit.Window = cfg.Server.GlobalRateLimit, cfg.Server.GlobalRateWindow
	authLimit := middlewareCustom.DefaultAuthRateLimit()
	authLimit.Requests, authLimit.Window = cfg.Server.AuthRateLimit, cfg.Server.AuthRateWindow

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	globalLimit.IPConfig, authLimit.IPConfig = ipConfig, ipConfig
	globalLimit.Logger, authLimit.Logger = logger, logger

	if cfg.Redis.URL != "" {
		redisClient, err := middlewareCustom.ConnectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		globalLimit.Counter = middlewareCustom.NewRedisLimitCounter(redisClient, "posgate:ratelimit:global")
		authLimit.Counter = middlewareCustom.NewRedisLimitCounter(redisClient, "posgate:ratelimit:auth")
		logger.Info("rate limits shared through redis")
	}

	csrfManager := auth.NewCSRFTokenManager(time.Hour)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middlewareCustom.BodyLimit(cfg.Server.MaxBodyBytes))
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.RateLimitByIP(globalLimit))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.CSRFProtection(csrfManager, middlewareCustom.CSRFConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IPConfig:       ipConfig,
	}, logger))
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// Register routes
	routes.RegisterRoutes(router, routes.Dependencies{
		Auth:          handlers.NewAuthHandler(authService, ipConfig, logger),
		Password:      handlers.NewPasswordHandler(resetService, ipConfig, logger),
		TwoFactor:     handlers.NewTwoFactorHandler(twoFactorService, ipConfig, logger),
		Health:        handlers.NewHealthHandler(db, logger),
		CSRF:          handlers.NewCSRFHandler(csrfManager, ipConfig, logger),
		Forwarder:     forwarder,
		Issuer:        tokenIssuer,
		Users:         userRepo,
		Sessions:      sessionService,
		Permissions:   auth.NewPermissionResolver(userRepo, permissionRepo, logger),
		AuthRateLimit: authLimit,
		Logger:        logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupManager := background.NewCleanupManager(sessionRepo, resetRepo, activityRepo, background.DefaultRetention, logger, cfg.Auth.CleanupInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		cleanupManager.Start(gctx)
		return nil
	})
	g.Go(func() error {
		csrfManager.Run(gctx, 10*time.Minute)
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// newSecretSource reads secrets from the environment or AWS Secrets Manager
func newSecretSource(ctx context.Context, cfg *config.Config) (services.SecretSource, error) {
	switch cfg.Secrets.Source {
	case "aws":
		source, err := services.NewAWSSecretsManagerSource(ctx, cfg.Secrets.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize secrets manager: %w", err)
		}
		return source, nil
	default:
		return services.NewEnvSecretSource(map[string]string{
			cfg.Secrets.JWTSecretName:     cfg.Auth.JWTSecret,
			cfg.Secrets.GatewaySecretName: cfg.Gateway.Secret,
		}), nil
	}
}

// newQueue uses Kafka when brokers are configured and an in-process buffer otherwise
func newQueue(cfg *config.Config, logger *slog.Logger) (queue.Queue, error) {
	if len(cfg.Notify.KafkaBrokers) == 0 {
		logger.Info("notifications use the in-memory queue")
		return queue.NewMemoryQueue(cfg.Notify.BufferSize), nil
	}

	q, err := queue.NewKafkaQueue(queue.KafkaConfig{
		Brokers: cfg.Notify.KafkaBrokers,
		Topic:   cfg.Notify.Topic,
		GroupID: cfg.Notify.GroupID,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize kafka queue: %w", err)
	}
	return q, nil
}

func newSenders(ctx context.Context, cfg *config.Config, secrets *services.SecretCache, logger *slog.Logger) (services.EmailSender, services.SMSSender, error) {
	var (
		email services.EmailSender = services.NewLogEmailSender(logger)
		sms   services.SMSSender   = services.NewLogSMSSender(logger)
	)

	if cfg.Email.Provider == "ses" {
		sender, err := services.NewSESEmailSender(ctx, cfg.Email.AWSRegion, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize email sender: %w", err)
		}
		email = sender
	}
	if cfg.SMS.Provider == "sns" {
		var creds aws.CredentialsProvider
		if cfg.SMS.CredentialsSecret != "" {
			creds = services.NewSecretCredentialsProvider(secrets, cfg.SMS.CredentialsSecret)
		}
		sender, err := services.NewSNSSMSSender(ctx, cfg.SMS.AWSRegion, cfg.SMS.SenderID, creds, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize sms sender: %w", err)
		}
		sms = sender
	}
	return email, sms, nil
}

func newBackendTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}

// ensureAdminUser creates the first super admin when the bootstrap
// credentials are set and the email is unused
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, cfg config.AuthConfig, logger *slog.Logger) error {
	if cfg.BootstrapAdminEmail == "" || cfg.BootstrapAdminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	// Check if admin already exists
	_, err := userRepo.GetByEmail(ctx, cfg.BootstrapAdminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(cfg.BootstrapAdminPassword); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	// Hash password
	hashedPassword, err := pkgauth.HashPassword(cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		FirstName:     "Admin",
		Email:         cfg.BootstrapAdminEmail,
		PasswordHash:  hashedPassword,
		RoleID:        models.SuperAdminRoleID,
		IsActive:      true,
		Is2FARequired: true,
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
