package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Secret sources
const (
	SecretSourceEnv = "env"
	SecretSourceAWS = "aws"
)

// Delivery providers
const (
	ProviderLog = "log"
	ProviderSES = "ses"
	ProviderSNS = "sns"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	TwoFactor TwoFactorConfig
	Gateway   GatewayConfig
	Secrets   SecretsConfig
	Redis     RedisConfig
	Notify    NotifyConfig
	Email     EmailConfig
	SMS       SMSConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64

	GlobalRateLimit  int
	GlobalRateWindow time.Duration
	AuthRateLimit    int
	AuthRateWindow   time.Duration
}

type AuthConfig struct {
	JWTSecret         string
	APIBaseURL        string
	FrontendURL       string
	AccessTokenExpiry time.Duration
	SessionExpiry     time.Duration
	RememberMeExpiry  time.Duration
	MaxFailedLogins   int
	LockoutDuration   time.Duration
	ResetTokenExpiry  time.Duration
	CleanupInterval   time.Duration

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

type TwoFactorConfig struct {
	Issuer            string
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	BackupCodeCount   int
}

type GatewayConfig struct {
	BackendURL  string
	GatewayURL  string
	Secret      string
	TokenExpiry time.Duration
}

type SecretsConfig struct {
	Source            string
	TTL               time.Duration
	JWTSecretName     string
	GatewaySecretName string
	AWSRegion         string
}

type RedisConfig struct {
	URL string
}

type NotifyConfig struct {
	KafkaBrokers  []string
	Topic         string
	GroupID       string
	BufferSize    int
	RatePerSecond float64
	Burst         int
	MaxRetries    int
	RetryBackoff  time.Duration
}

type EmailConfig struct {
	Provider    string
	FromAddress string
	FromName    string
	AWSRegion   string
}

type SMSConfig struct {
	Provider  string
	SenderID  string
	AWSRegion string
	// CredentialsSecret names a JSON secret holding SNS access keys; empty
	// uses the default AWS credential chain
	CredentialsSecret string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")
	awsRegion := getEnv("AWS_REGION", "us-east-1")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "posgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			Env:              env,
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:   parseAllowedOrigins(env),
			TrustedProxies:   getEnvAsSlice("TRUSTED_PROXIES", nil),
			ReadTimeout:      getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:     getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:      getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:   getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			MaxBodyBytes:     int64(getEnvAsInt("SERVER_MAX_BODY_BYTES", 10<<20)),
			GlobalRateLimit:  getEnvAsInt("RATE_LIMIT_MAX", 100),
			GlobalRateWindow: getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			AuthRateLimit:    getEnvAsInt("AUTH_RATE_LIMIT_MAX", 5),
			AuthRateWindow:   getEnvAsDuration("AUTH_RATE_LIMIT_WINDOW", time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:              getEnv("JWT_SECRET", ""),
			APIBaseURL:             getEnv("API_BASE_URL", "http://localhost:8080"),
			FrontendURL:            getEnv("FRONTEND_URL", "http://localhost:3000"),
			AccessTokenExpiry:      getEnvAsDuration("ACCESS_TOKEN_EXPIRY", time.Hour),
			SessionExpiry:          getEnvAsDuration("SESSION_EXPIRY", 24*time.Hour),
			RememberMeExpiry:       getEnvAsDuration("REMEMBER_ME_EXPIRY", 7*24*time.Hour),
			MaxFailedLogins:        getEnvAsInt("MAX_FAILED_LOGINS", 5),
			LockoutDuration:        getEnvAsDuration("ACCOUNT_LOCKOUT_DURATION", 30*time.Minute),
			ResetTokenExpiry:       getEnvAsDuration("PASSWORD_RESET_EXPIRY", time.Hour),
			CleanupInterval:        getEnvAsDuration("SESSION_CLEANUP_INTERVAL", time.Hour),
			BootstrapAdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
			BootstrapAdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
		TwoFactor: TwoFactorConfig{
			Issuer:            getEnv("TWO_FACTOR_ISSUER", "POS-SaaS-Platform"),
			MaxFailedAttempts: getEnvAsInt("TWO_FACTOR_MAX_FAILED_ATTEMPTS", 5),
			LockoutDuration:   getEnvAsDuration("TWO_FACTOR_LOCKOUT_DURATION", time.Hour),
			BackupCodeCount:   getEnvAsInt("TWO_FACTOR_BACKUP_CODES", 10),
		},
		Gateway: GatewayConfig{
			BackendURL:  getEnv("POS_BACKEND_URL", ""),
			GatewayURL:  getEnv("GATEWAY_URL", "http://localhost:8080"),
			Secret:      getEnv("GATEWAY_SECRET", ""),
			TokenExpiry: getEnvAsDuration("GATEWAY_TOKEN_EXPIRY", 5*time.Minute),
		},
		Secrets: SecretsConfig{
			Source:            getEnv("SECRETS_SOURCE", SecretSourceEnv),
			TTL:               getEnvAsDuration("SECRETS_CACHE_TTL", 24*time.Hour),
			JWTSecretName:     getEnv("JWT_SECRET_NAME", "JWT_AUTH_SECRET"),
			GatewaySecretName: getEnv("GATEWAY_SECRET_NAME", "GATEWAY_SECRET"),
			AWSRegion:         awsRegion,
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Notify: NotifyConfig{
			KafkaBrokers:  getEnvAsSlice("KAFKA_BROKERS", nil),
			Topic:         getEnv("NOTIFY_TOPIC", "pos-notify"),
			GroupID:       getEnv("NOTIFY_GROUP_ID", "posgate-notify"),
			BufferSize:    getEnvAsInt("NOTIFY_BUFFER_SIZE", 256),
			RatePerSecond: getEnvAsFloat("NOTIFY_RATE_PER_SECOND", 10),
			Burst:         getEnvAsInt("NOTIFY_BURST", 5),
			MaxRetries:    getEnvAsInt("NOTIFY_MAX_RETRIES", 3),
			RetryBackoff:  getEnvAsDuration("NOTIFY_RETRY_BACKOFF", 2*time.Second),
		},
		Email: EmailConfig{
			Provider:    getEnv("EMAIL_PROVIDER", ProviderLog),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@localhost"),
			FromName:    getEnv("EMAIL_FROM_NAME", "POS Platform"),
			AWSRegion:   awsRegion,
		},
		SMS: SMSConfig{
			Provider:          getEnv("SMS_PROVIDER", ProviderLog),
			SenderID:          getEnv("SMS_SENDER_ID", ""),
			AWSRegion:         awsRegion,
			CredentialsSecret: getEnv("SMS_CREDENTIALS_SECRET", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	switch cfg.Secrets.Source {
	case SecretSourceEnv:
		if cfg.Auth.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required")
		}
		if err := validateSecret("JWT_SECRET", cfg.Auth.JWTSecret, env); err != nil {
			return nil, err
		}
		if cfg.Gateway.BackendURL != "" {
			if err := validateSecret("GATEWAY_SECRET", cfg.Gateway.Secret, env); err != nil {
				return nil, err
			}
		}
	case SecretSourceAWS:
		// Fetched from Secrets Manager at first use
	default:
		return nil, fmt.Errorf("SECRETS_SOURCE must be %q or %q, got %q", SecretSourceEnv, SecretSourceAWS, cfg.Secrets.Source)
	}

	if cfg.Auth.MaxFailedLogins < 1 || cfg.TwoFactor.MaxFailedAttempts < 1 {
		return nil, fmt.Errorf("failed attempt thresholds must be at least 1")
	}

	return cfg, nil
}

// validateSecret enforces minimum security standards for signing secrets
func validateSecret(name, secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsSlice splits a comma separated value, dropping empty entries
func getEnvAsSlice(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	out := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsSlice("ALLOWED_ORIGINS", []string{})
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
