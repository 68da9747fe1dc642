// Package cache wraps Redis for the broker's two ambient concerns: a
// short-TTL positive cache in front of the origin probe, and a
// distributed spawn lock so that multiple broker replicas sharing one
// origin don't race to spawn the same transcoder.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kestrelstream/broker/internal/metrics"
)

// Cache provides the broker's Redis-backed coordination primitives.
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance and verifies connectivity.
func NewCache(addr string, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks connectivity. The /healthz handler does not call it.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Probe liveness cache

// SetLive records that streamKey was observed live, for ttl.
func (c *Cache) SetLive(ctx context.Context, streamKey string, ttl time.Duration) error {
	key := fmt.Sprintf("live:%s", streamKey)
	return c.client.Set(ctx, key, "1", ttl).Err()
}

// IsLiveCached returns (true, true) if a positive probe result for
// streamKey is still cached; (false, false) on a cache miss.
func (c *Cache) IsLiveCached(ctx context.Context, streamKey string) (bool, bool) {
	key := fmt.Sprintf("live:%s", streamKey)
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, false
	}
	return exists > 0, exists > 0
}

// CachingProbe decorates an origin.Prober with a short-TTL positive cache:
// once a stream is observed live, subsequent IsLive calls within the TTL
// are answered from Redis instead of re-polling SRS.
type CachingProbe struct {
	inner Prober
	cache *Cache
	ttl   time.Duration
}

// Prober mirrors origin.Prober without importing it, avoiding a dependency
// cycle between cache and origin.
type Prober interface {
	IsLive(ctx context.Context, streamKey string) bool
	WaitUntilLive(ctx context.Context, streamKey string, deadline time.Time) bool
}

func NewCachingProbe(inner Prober, c *Cache, ttl time.Duration) *CachingProbe {
	return &CachingProbe{inner: inner, cache: c, ttl: ttl}
}

func (p *CachingProbe) IsLive(ctx context.Context, streamKey string) bool {
	if live, hit := p.cache.IsLiveCached(ctx, streamKey); hit {
		metrics.RecordCacheAccess("probe", true)
		return live
	}
	metrics.RecordCacheAccess("probe", false)

	live := p.inner.IsLive(ctx, streamKey)
	if live {
		_ = p.cache.SetLive(ctx, streamKey, p.ttl)
	}
	return live
}

func (p *CachingProbe) WaitUntilLive(ctx context.Context, streamKey string, deadline time.Time) bool {
	if p.IsLive(ctx, streamKey) {
		return true
	}
	live := p.inner.WaitUntilLive(ctx, streamKey, deadline)
	if live {
		_ = p.cache.SetLive(ctx, streamKey, p.ttl)
	}
	return live
}

// Distributed spawn lock, consulted by registry.Registry when configured
// via WithLocker.

// AcquireLock attempts to acquire a distributed lock on resource,
// returning true if the caller now holds it.
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, "locked", ttl).Result()
}

// ReleaseLock releases a distributed lock previously acquired with
// AcquireLock.
func (c *Cache) ReleaseLock(ctx context.Context, resource string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.Del(ctx, key).Err()
}
