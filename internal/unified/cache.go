package unified

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores the last successful join under a single constant key.
type Cache interface {
	Load(ctx context.Context) (Result, bool, error)
	Store(ctx context.Context, r Result) error
	Clear(ctx context.Context) error
}

type MemoryCache struct {
	mu    sync.RWMutex
	entry *Result
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Load(context.Context) (Result, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return Result{}, false, nil
	}
	return *c.entry, true, nil
}

func (c *MemoryCache) Store(_ context.Context, r Result) error {
	c.mu.Lock()
	c.entry = &r
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
	return nil
}

const cacheKey = "unified_data"

// RedisCache shares the joined data between replicas. The key expires a
// little after the freshness window so a stale entry is never served forever.
type RedisCache struct {
	client *redis.Client
	key    string
	expiry time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, key: prefix + cacheKey, expiry: 2 * ttl}
}

func (c *RedisCache) Load(ctx context.Context) (Result, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("redis get %s: %w", c.key, err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, false, fmt.Errorf("decode cached result: %w", err)
	}
	return r, true, nil
}

func (c *RedisCache) Store(ctx context.Context, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.expiry).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key, err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", c.key, err)
	}
	return nil
}
