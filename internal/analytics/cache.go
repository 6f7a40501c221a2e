package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dashboard:"

// DashboardKey is the cache key for a user's seven-day dashboard.
func DashboardKey(userID uint64) string {
	return fmt.Sprintf("%s%d:7d", keyPrefix, userID)
}

func userPattern(userID uint64) string {
	return fmt.Sprintf("%s%d:*", keyPrefix, userID)
}

// Cache stores dashboards with an explicit expiry.
type Cache interface {
	Get(ctx context.Context, key string) (*Dashboard, bool, error)
	Set(ctx context.Context, key string, d *Dashboard, ttl time.Duration) error
	// DeleteUser removes every key scoped to userID.
	DeleteUser(ctx context.Context, userID uint64) error
}

type memoryItem struct {
	d       Dashboard
	expires time.Time
}

// MemoryCache is a process-local Cache. The mutex only protects the map;
// racing reads and invalidations resolve last-write-wins.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Dashboard, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(it.expires) {
		delete(c.items, key)
		return nil, false, nil
	}
	d := it.d
	return &d, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, d *Dashboard, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryItem{d: *d, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) DeleteUser(_ context.Context, userID uint64) error {
	prefix := strings.TrimSuffix(userPattern(userID), "*")
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
	return nil
}

// Prune drops expired items and reports how many it removed.
func (c *MemoryCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, it := range c.items {
		if !now.Before(it.expires) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// RedisCache shares dashboards across instances. Expiry is enforced by
// Redis key TTLs.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCache{rdb: rdb}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Dashboard, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var d Dashboard
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, false, fmt.Errorf("decode cached dashboard: %w", err)
	}
	return &d, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, d *Dashboard, ttl time.Duration) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode dashboard: %w", err)
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) DeleteUser(ctx context.Context, userID uint64) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, userPattern(userID), 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
