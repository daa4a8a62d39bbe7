package middleware

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis accepts a redis:// URL or a plain host:port
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type redisCounterClient interface {
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// RedisLimitCounter is an httprate.LimitCounter shared by every gateway
// replica. Window keys expire after three windows.
type RedisLimitCounter struct {
	client       redisCounterClient
	prefix       string
	windowLength time.Duration
	timeout      time.Duration
}

var _ httprate.LimitCounter = (*RedisLimitCounter)(nil)

func NewRedisLimitCounter(client redisCounterClient, prefix string) *RedisLimitCounter {
	if prefix == "" {
		prefix = "posgate:ratelimit"
	}
	return &RedisLimitCounter{client: client, prefix: prefix, timeout: time.Second}
}

func (c *RedisLimitCounter) Config(requestLimit int, windowLength time.Duration) {
	c.windowLength = windowLength
}

func (c *RedisLimitCounter) Increment(key string, currentWindow time.Time) error {
	return c.IncrementBy(key, currentWindow, 1)
}

func (c *RedisLimitCounter) IncrementBy(key string, currentWindow time.Time, amount int) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	k := c.key(key, currentWindow)
	if err := c.client.IncrBy(ctx, k, int64(amount)).Err(); err != nil {
		return fmt.Errorf("redis incrby: %w", err)
	}
	if err := c.client.Expire(ctx, k, c.windowLength*3).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}

func (c *RedisLimitCounter) Get(key string, currentWindow, previousWindow time.Time) (int, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	values, err := c.client.MGet(ctx, c.key(key, currentWindow), c.key(key, previousWindow)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis mget: %w", err)
	}
	if len(values) != 2 {
		return 0, 0, fmt.Errorf("redis mget: expected 2 values, got %d", len(values))
	}
	curr, err := counterValue(values[0])
	if err != nil {
		return 0, 0, err
	}
	prev, err := counterValue(values[1])
	if err != nil {
		return 0, 0, err
	}
	return curr, prev, nil
}

func (c *RedisLimitCounter) key(key string, window time.Time) string {
	return fmt.Sprintf("%s:%d", c.prefix, httprate.LimitCounterKey(key, window))
}

// counterValue reads an MGET slot; a missing key is zero
func counterValue(v any) (int, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("redis counter %q is not a number", val)
		}
		return n, nil
	case int64:
		return int(val), nil
	default:
		return 0, fmt.Errorf("redis counter has unexpected type %T", v)
	}
}
