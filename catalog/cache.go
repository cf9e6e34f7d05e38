package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a cached catalog response stays fresh.
const DefaultTTL = 2 * time.Minute

// Cache memoizes raw response bodies keyed by request URL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, body []byte) error
	Clear(ctx context.Context) error
}

type memoryItem struct {
	body   []byte
	stored time.Time
}

// MemoryCache is a process-local Cache with a fixed TTL.
type MemoryCache struct {
	TTL time.Duration
	Now func() time.Time

	mu    sync.Mutex
	items map[string]memoryItem
}

// NewMemoryCache creates a MemoryCache. A non-positive ttl means DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{TTL: ttl, Now: time.Now, items: map[string]memoryItem{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.Now().Sub(item.stored) >= c.TTL {
		delete(c.items, key)
		return nil, false
	}
	return item.body, true
}

func (c *MemoryCache) Set(_ context.Context, key string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryItem{body: append([]byte(nil), body...), stored: c.Now()}
	return nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = map[string]memoryItem{}
	return nil
}

// RedisCache stores responses in Redis with the TTL as key expiry, so several
// processes can share one cache.
type RedisCache struct {
	rdb       redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisCache wraps rdb. Keys are namespaced under keyPrefix.
func NewRedisCache(rdb redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if keyPrefix == "" {
		keyPrefix = "mcwizard:catalog"
	}
	return &RedisCache{rdb: rdb, keyPrefix: keyPrefix, ttl: ttl}
}

// NewRedisCacheFromURL parses a redis:// URL and connects lazily.
func NewRedisCacheFromURL(rawURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisCache(redis.NewClient(opts), "", ttl), nil
}

func (c *RedisCache) key(k string) string {
	return c.keyPrefix + ":" + k
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	body, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return body, true
}

func (c *RedisCache) Set(ctx context.Context, key string, body []byte) error {
	return c.rdb.Set(ctx, c.key(key), body, c.ttl).Err()
}

func (c *RedisCache) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.keyPrefix+":*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	err := c.rdb.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
