// Package cache provides the in-memory TTL cache used by the store.
package cache

import (
	"context"
	"sync"
	"time"
)

// Config holds the cache settings.
type Config struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	// MaxItems bounds the number of entries; 0 means unbounded.
	MaxItems int
	// OnEviction is called for every entry removed by expiry or by the size bound.
	OnEviction func(key string, value any)
}

type item struct {
	value     any
	expiresAt time.Time
}

// Cache is a concurrency-safe key/value cache with per-entry expiry.
type Cache struct {
	config Config

	mu    sync.RWMutex
	items map[string]item

	stopCh    chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

// New creates a cache and starts its cleanup goroutine when CleanupInterval > 0.
func New(config Config) *Cache {
	c := &Cache{
		config: config,
		items:  make(map[string]item),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
	if config.CleanupInterval > 0 {
		go c.cleanupLoop(config.CleanupInterval)
	}
	return c
}

// Get returns the value stored for key if it has not expired.
func (c *Cache) Get(_ context.Context, key string) (any, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || c.now().After(it.expiresAt) {
		return nil, false
	}
	return it.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	c.SetWithTTL(ctx, key, value, c.config.DefaultTTL)
}

// SetWithTTL stores value under key for ttl.
func (c *Cache) SetWithTTL(_ context.Context, key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.config.MaxItems > 0 && len(c.items) >= c.config.MaxItems {
		c.evictOldestLocked()
	}
	c.items[key] = item{value: value, expiresAt: c.now().Add(ttl)}
}

// Delete removes key.
func (c *Cache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *Cache) Clear(_ context.Context) {
	c.mu.Lock()
	c.items = make(map[string]item)
	c.mu.Unlock()
}

// Size returns the number of entries, expired ones included until cleanup.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stopCh) })
	return nil
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) deleteExpired() {
	now := c.now()
	var evicted map[string]any

	c.mu.Lock()
	for key, it := range c.items {
		if now.After(it.expiresAt) {
			if c.config.OnEviction != nil {
				if evicted == nil {
					evicted = make(map[string]any)
				}
				evicted[key] = it.value
			}
			delete(c.items, key)
		}
	}
	c.mu.Unlock()

	for key, value := range evicted {
		c.config.OnEviction(key, value)
	}
}

// evictOldestLocked drops the entry closest to expiry. c.mu must be held.
func (c *Cache) evictOldestLocked() {
	var (
		oldestKey string
		oldest    item
		found     bool
	)
	for key, it := range c.items {
		if !found || it.expiresAt.Before(oldest.expiresAt) {
			oldestKey, oldest, found = key, it, true
		}
	}
	if !found {
		return
	}
	delete(c.items, oldestKey)
	if c.config.OnEviction != nil {
		// Called with the lock held; callbacks must not touch the cache.
		c.config.OnEviction(oldestKey, oldest.value)
	}
}
