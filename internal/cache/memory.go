package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is an in-process LRU cache with a fixed time-to-live.
type MemoryCache struct {
	lru *expirable.LRU[string, Entry]
}

// NewMemoryCache creates a cache holding at most size entries for ttl each.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1000
	}
	return &MemoryCache{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

// Get returns a copy of the cached entry.
func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Set stores entry under key.
func (c *MemoryCache) Set(_ context.Context, key string, entry *Entry) error {
	stored := *entry
	if stored.CachedAt.IsZero() {
		stored.CachedAt = time.Now()
	}
	c.lru.Add(key, stored)
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Close purges the cache.
func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}
