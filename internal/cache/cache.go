package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Order create idempotency: idem:order:create:{customer_id}:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Password reset: reset:{token} -> user_id
	KeyPasswordReset = "reset:%s"

	// Producer subscription status: sub_status:{user_id} -> json
	KeySubscriptionStatus = "sub_status:%s"
)

var (
	TTLIdempotency        = 24 * time.Hour
	TTLPasswordReset      = time.Hour
	TTLSubscriptionStatus = time.Minute
)

// ErrDisabled is returned by operations that need Redis when none is configured
var ErrDisabled = errors.New("cache disabled")

// ErrMiss is returned by Get when the key does not exist
var ErrMiss = errors.New("cache miss")

// Cache is a thin nil-safe wrapper over a Redis client. A nil *Cache or one
// built without an address behaves as an always-missing cache.
type Cache struct {
	rdb *redis.Client
}

// New connects to addr; an empty addr yields a disabled cache
func New(addr string) *Cache {
	if addr == "" {
		return &Cache{}
	}
	return &Cache{rdb: redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})}
}

// Enabled reports whether a Redis client is configured
func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Ping checks connectivity
func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	return c.rdb.Ping(ctx).Err()
}

// Get returns the value at key or ErrMiss
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if !c.Enabled() {
		return "", ErrMiss
	}
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

// Set stores value at key with ttl; a disabled cache silently drops it
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// SetNX stores value only if key is absent and reports whether it did
func (c *Cache) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if !c.Enabled() {
		return false, ErrDisabled
	}
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

// Del removes keys
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// GetDel atomically reads and removes key
func (c *Cache) GetDel(ctx context.Context, key string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	v, err := c.rdb.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

// Close releases the client
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}
