package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultThrottlePrefix namespaces throttle counters in Redis
const DefaultThrottlePrefix = "keystone-auth:login"

// DistributedLoginThrottle counts login attempts per fixed window in Redis
// so the allowance is shared by every instance.
type DistributedLoginThrottle struct {
	redis  *redis.Client
	config *ThrottleConfig
	prefix string
}

// NewDistributedLoginThrottle creates a Redis-backed throttle
func NewDistributedLoginThrottle(redisClient *redis.Client, config *ThrottleConfig, prefix string) *DistributedLoginThrottle {
	if config == nil {
		config = DefaultThrottleConfig()
	}
	if prefix == "" {
		prefix = DefaultThrottlePrefix
	}
	return &DistributedLoginThrottle{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

func (t *DistributedLoginThrottle) key(key string) string {
	return fmt.Sprintf("%s:%s", t.prefix, key)
}

// Allow increments key's counter, starting the window on first use
func (t *DistributedLoginThrottle) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := t.key(key)

	count, err := t.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, 0, fmt.Errorf("redis error: %w", err)
	}
	if count == 1 {
		if err := t.redis.Expire(ctx, redisKey, t.config.Window).Err(); err != nil {
			return true, 0, fmt.Errorf("redis error: %w", err)
		}
	}

	if count <= int64(t.config.Attempts+t.config.Burst) {
		return true, 0, nil
	}
	retryAfter, err := t.redis.PTTL(ctx, redisKey).Result()
	if err != nil || retryAfter <= 0 {
		retryAfter = t.config.Window
	}
	return false, retryAfter, nil
}

// Remaining returns the attempts left in key's current window
func (t *DistributedLoginThrottle) Remaining(ctx context.Context, key string) (int, error) {
	count, err := t.redis.Get(ctx, t.key(key)).Int()
	if err == redis.Nil {
		return t.config.Attempts + t.config.Burst, nil
	} else if err != nil {
		return 0, err
	}

	remaining := t.config.Attempts + t.config.Burst - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset clears key's counter
func (t *DistributedLoginThrottle) Reset(ctx context.Context, key string) error {
	return t.redis.Del(ctx, t.key(key)).Err()
}

// HealthCheck verifies Redis connectivity
func (t *DistributedLoginThrottle) HealthCheck(ctx context.Context) error {
	return t.redis.Ping(ctx).Err()
}
