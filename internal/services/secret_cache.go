package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"golang.org/x/sync/singleflight"
)

// ErrSecretNotFound is returned by a source that has no value for a key
var ErrSecretNotFound = errors.New("secret not found")

// SecretSource fetches a secret value by name
type SecretSource interface {
	Fetch(ctx context.Context, key string) (string, error)
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// SecretCache is a process-wide TTL cache in front of a SecretSource.
// Concurrent misses for the same key share one fetch.
type SecretCache struct {
	source  SecretSource
	ttl     time.Duration
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]cachedSecret
	group   singleflight.Group
	now     func() time.Time
}

func NewSecretCache(source SecretSource, ttl time.Duration, logger *slog.Logger) *SecretCache {
	return &SecretCache{
		source:  source,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]cachedSecret),
		now:     time.Now,
	}
}

// Get returns the cached value, fetching it on a miss or after expiry
func (c *SecretCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && entry.expiresAt.After(c.now()) {
		return entry.value, nil
	}

	// The shared fetch outlives any single caller's cancellation
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := c.source.Fetch(fetchCtx, key)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.entries[key] = cachedSecret{value: value, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		c.logger.Error("failed to fetch secret", slog.String("secret_key", key), slog.Any("error", err))
		return "", fmt.Errorf("failed to fetch secret %s: %w", key, err)
	}
	return v.(string), nil
}

// GetJSON decodes a JSON secret into out. A value that fails to decode is
// evicted and fetched once more before giving up.
func (c *SecretCache) GetJSON(ctx context.Context, key string, out any) error {
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := c.Get(ctx, key)
		if err != nil {
			return err
		}
		if err = json.Unmarshal([]byte(raw), out); err == nil {
			return nil
		}
		c.logger.Error("failed to parse cached secret", slog.String("secret_key", key), slog.Int("attempt", attempt+1), slog.Any("error", err))
		c.evict(key)
	}
	return fmt.Errorf("secret %s is not valid JSON", key)
}

func (c *SecretCache) evict(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// EnvSecretSource serves secrets from explicit values, then the process
// environment
type EnvSecretSource struct {
	values map[string]string
}

func NewEnvSecretSource(values map[string]string) *EnvSecretSource {
	return &EnvSecretSource{values: values}
}

func (s *EnvSecretSource) Fetch(_ context.Context, key string) (string, error) {
	if v := s.values[key]; v != "" {
		return v, nil
	}
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
}

// SecretsManagerAPI is the subset of the Secrets Manager client in use
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManagerSource reads string secrets from AWS Secrets Manager
type AWSSecretsManagerSource struct {
	client SecretsManagerAPI
}

func NewAWSSecretsManagerSource(ctx context.Context, region string) (*AWSSecretsManagerSource, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSSecretsManagerSourceWithClient(secretsmanager.NewFromConfig(cfg)), nil
}

func NewAWSSecretsManagerSourceWithClient(client SecretsManagerAPI) *AWSSecretsManagerSource {
	return &AWSSecretsManagerSource{client: client}
}

func (s *AWSSecretsManagerSource) Fetch(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(key),
	})
	if err != nil {
		return "", err
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("%w: %s has no string value", ErrSecretNotFound, key)
	}
	return *out.SecretString, nil
}
