package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinical-fact-validator/internal/domain"
)

const keyPrefix = "clinval:report:"

// RedisCache stores entries in Redis with a default TTL.
type RedisCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewRedisCache connects to the Redis instance in config and verifies the connection.
func NewRedisCache(config domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheFromClient(client, config.DefaultTTL), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, defaultTTL time.Duration) *RedisCache {
	return &RedisCache{redis: client, defaultTTL: defaultTTL}
}

// Get retrieves a cached entry. Corrupted entries are removed and reported as misses.
func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	val, err := c.redis.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached report: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(val, &entry); err != nil || entry.Report == nil {
		c.redis.Del(ctx, keyPrefix+key)
		return nil, false, nil
	}
	return &entry, true, nil
}

// Set caches entry for the default TTL.
func (c *RedisCache) Set(ctx context.Context, key string, entry *Entry) error {
	stored := *entry
	if stored.CachedAt.IsZero() {
		stored.CachedAt = time.Now().UTC()
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal cached report: %w", err)
	}
	return c.redis.Set(ctx, keyPrefix+key, data, c.defaultTTL).Err()
}

// Delete removes a cached entry.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.redis.Del(ctx, keyPrefix+key).Err()
}

// Ping checks if the Redis connection is alive.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
