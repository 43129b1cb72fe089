// Package cache provides a small generic in-memory cache with per-entry TTL.
// Expired entries are swept by a background janitor so long-lived caches do
// not grow without bound.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps keys to values with an expiry per entry.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	done    chan struct{}
	once    sync.Once
}

// New creates a Cache whose janitor sweeps expired entries every
// cleanupInterval. Call Close to stop the janitor.
func New[K comparable, V any](cleanupInterval time.Duration) *Cache[K, V] {
	c := &Cache[K, V]{
		entries: make(map[K]entry[V]),
		done:    make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}

	return c
}

// Get returns the value for key if present and not expired.
func (c *Cache[K, V]) Get(_ context.Context, key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for the given TTL. A zero or negative TTL
// stores nothing.
func (c *Cache[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes key from the cache.
func (c *Cache[K, V]) Delete(_ context.Context, key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries, including not-yet-swept expired ones.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the janitor goroutine. Safe to call multiple times.
func (c *Cache[K, V]) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Cache[K, V]) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
