package projects

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/keystone-auth/pkg/identity"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
)

const (
	// DefaultCacheSize bounds the in-process cache
	DefaultCacheSize = 1024
	// DefaultCacheTTL expires entries whose token was never logged out
	DefaultCacheTTL = 5 * time.Minute
	// DefaultRedisPrefix namespaces project lists in a shared Redis
	DefaultRedisPrefix = "keystone-auth:projects:"
)

// Cache stores project lists keyed by token id
type Cache interface {
	Name() string
	Get(ctx context.Context, token string) ([]identity.Project, bool)
	Add(ctx context.Context, token string, projects []identity.Project)
	Remove(ctx context.Context, token string)
}

// LRUCache is a bounded in-process cache. Get returns the stored slice
// itself, so repeated lookups observe the same list.
type LRUCache struct {
	lru *lru.LRU[string, []identity.Project]
}

// NewLRUCache creates an in-process cache of at most size entries, each
// living at most ttl.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &LRUCache{
		lru: lru.NewLRU[string, []identity.Project](size, nil, ttl),
	}
}

func (c *LRUCache) Name() string { return "memory" }

func (c *LRUCache) Get(_ context.Context, token string) ([]identity.Project, bool) {
	return c.lru.Get(token)
}

func (c *LRUCache) Add(_ context.Context, token string, projects []identity.Project) {
	c.lru.Add(token, projects)
}

func (c *LRUCache) Remove(_ context.Context, token string) {
	c.lru.Remove(token)
}

// Len returns the number of live entries
func (c *LRUCache) Len() int {
	return c.lru.Len()
}

// RedisCache shares project lists between dashboard processes. Keys are
// digests of the token so token ids never reach Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *observability.Logger
}

// NewRedisCache wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedisCache(client *redis.Client, ttl time.Duration, prefix string, logger *observability.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		prefix: prefix,
		logger: logger.WithComponent("project_cache"),
	}
}

// NewRedisClient connects to the Redis at rawURL and checks it answers
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (c *RedisCache) Name() string { return "redis" }

func (c *RedisCache) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, token string) ([]identity.Project, bool) {
	data, err := c.client.Get(ctx, c.key(token)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).Warn("Project cache lookup failed")
		}
		return nil, false
	}

	var projects []identity.Project
	if err := json.Unmarshal(data, &projects); err != nil {
		c.logger.WithError(err).Warn("Discarding undecodable project cache entry")
		return nil, false
	}
	return projects, true
}

func (c *RedisCache) Add(ctx context.Context, token string, projects []identity.Project) {
	data, err := json.Marshal(projects)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(token), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Project cache store failed")
	}
}

func (c *RedisCache) Remove(ctx context.Context, token string) {
	if err := c.client.Del(ctx, c.key(token)).Err(); err != nil {
		c.logger.WithError(err).Warn("Project cache removal failed")
	}
}

// TieredCache answers from the local cache first and falls back to the
// shared one, copying shared hits locally.
type TieredCache struct {
	local  Cache
	shared Cache
}

func NewTieredCache(local, shared Cache) *TieredCache {
	return &TieredCache{local: local, shared: shared}
}

func (c *TieredCache) Name() string { return c.local.Name() + "+" + c.shared.Name() }

func (c *TieredCache) Get(ctx context.Context, token string) ([]identity.Project, bool) {
	if projects, ok := c.local.Get(ctx, token); ok {
		return projects, true
	}
	projects, ok := c.shared.Get(ctx, token)
	if !ok {
		return nil, false
	}
	c.local.Add(ctx, token, projects)
	// Re-read so callers share the locally stored slice.
	if local, ok := c.local.Get(ctx, token); ok {
		return local, true
	}
	return projects, true
}

func (c *TieredCache) Add(ctx context.Context, token string, projects []identity.Project) {
	c.local.Add(ctx, token, projects)
	c.shared.Add(ctx, token, projects)
}

func (c *TieredCache) Remove(ctx context.Context, token string) {
	c.local.Remove(ctx, token)
	c.shared.Remove(ctx, token)
}
