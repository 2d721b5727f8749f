// Package cache provides a byte cache for signed manifests. Manifests are
// immutable once written, so verification and packaging can read through the
// cache instead of hitting object storage on every call.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ManifestCache caches manifest bytes keyed by storage path
type ManifestCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte) error
	Invalidate(ctx context.Context, key string) error
	Close() error
}

// InMemoryManifestCache is a simple process-local cache
type InMemoryManifestCache struct {
	cache map[string][]byte
	mu    sync.RWMutex
}

// NewInMemoryManifestCache creates a new in-memory manifest cache
func NewInMemoryManifestCache() *InMemoryManifestCache {
	return &InMemoryManifestCache{
		cache: make(map[string][]byte),
	}
}

// Get retrieves manifest bytes from the cache
func (c *InMemoryManifestCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Set stores manifest bytes in the cache
func (c *InMemoryManifestCache) Set(ctx context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = append([]byte(nil), data...)
	return nil
}

// Invalidate removes an entry from the cache
func (c *InMemoryManifestCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, key)
	return nil
}

// Close does nothing for the in-memory cache
func (c *InMemoryManifestCache) Close() error {
	return nil
}

// RedisManifestCache is a Redis-backed distributed manifest cache
type RedisManifestCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisCacheConfig holds configuration for the Redis cache
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisManifestCache creates a Redis-backed manifest cache
func NewRedisManifestCache(config RedisCacheConfig) (*RedisManifestCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "snapseal:manifest:"
	}

	ttl := config.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &RedisManifestCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// Get retrieves manifest bytes from Redis. Any error is treated as a miss.
func (c *RedisManifestCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores manifest bytes in Redis with the configured TTL
func (c *RedisManifestCache) Set(ctx context.Context, key string, data []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache manifest: %w", err)
	}
	return nil
}

// Invalidate removes an entry from Redis
func (c *RedisManifestCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to invalidate manifest cache: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisManifestCache) Close() error {
	return c.client.Close()
}

// NoOpManifestCache disables caching entirely
type NoOpManifestCache struct{}

// NewNoOpManifestCache creates a cache that never hits
func NewNoOpManifestCache() *NoOpManifestCache {
	return &NoOpManifestCache{}
}

// Get always misses
func (c *NoOpManifestCache) Get(ctx context.Context, key string) ([]byte, bool) {
	return nil, false
}

// Set does nothing
func (c *NoOpManifestCache) Set(ctx context.Context, key string, data []byte) error {
	return nil
}

// Invalidate does nothing
func (c *NoOpManifestCache) Invalidate(ctx context.Context, key string) error {
	return nil
}

// Close does nothing
func (c *NoOpManifestCache) Close() error {
	return nil
}
