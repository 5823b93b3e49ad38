package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/baxromumarov/jobradar/internal/core"
)

const (
	DefaultTTL = 300 * time.Second
	keyPrefix  = "jobradar:search:"
)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisCache keeps merged search results in Redis as JSON.
type RedisCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl, logger: slog.With("component", "search_cache")}
}

func (c *RedisCache) Load(ctx context.Context, key string) (*core.MergedResult, error) {
	raw, err := c.rdb.Get(ctx, hashKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var v core.MergedResult
	if err := json.Unmarshal(raw, &v); err != nil {
		// a bad entry is a miss; it expires on its own
		c.logger.Warn("dropping undecodable cache entry", "error", err)
		return nil, nil
	}
	return &v, nil
}

func (c *RedisCache) Store(ctx context.Context, key string, v *core.MergedResult) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, hashKey(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return keyPrefix + hex.EncodeToString(sum[:])
}

type entry struct {
	value   core.MergedResult
	expires time.Time
}

// MemoryCache is a process-local TTL cache for single-instance runs.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]entry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{items: map[string]entry{}, ttl: ttl, now: time.Now}
}

func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Load(_ context.Context, key string) (*core.MergedResult, error) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return nil, nil
	}
	v := e.value
	v.Jobs = append(v.Jobs[:0:0], e.value.Jobs...)
	return &v, nil
}

func (c *MemoryCache) Store(_ context.Context, key string, v *core.MergedResult) error {
	if v == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry{value: *v, expires: c.now().Add(c.ttl)}
	return nil
}

// Sweep drops expired entries and reports how many went.
func (c *MemoryCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.items {
		if !now.Before(e.expires) {
			delete(c.items, k)
			n++
		}
	}
	return n
}
