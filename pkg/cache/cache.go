// Package cache is a small in-memory TTL cache, used to avoid hitting the
// inference server for rarely changing data such as the model list.
package cache

import (
	"context"
	"sync"
	"time"

	"chatmallu/client/pkg/config"
)

// Item represents a cached item with expiration
type Item struct {
	Value      any
	Expiration int64
}

// Expired checks if the cache item has expired
func (item Item) expiredAt(now int64) bool {
	return item.Expiration > 0 && now > item.Expiration
}

// Options configure a Cache.
type Options struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	MaxItems        int
}

// OptionsFrom reads cache options from the application config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		TTL:             cfg.Cache.TTL,
		CleanupInterval: cfg.Cache.PurgeWindow,
		MaxItems:        cfg.Cache.MaxSize,
	}
}

// Cache is a thread-safe in-memory cache with expiration
type Cache struct {
	items             map[string]Item
	mu                sync.RWMutex
	loadMu            sync.Mutex
	defaultExpiration time.Duration
	cleanupInterval   time.Duration
	maxItems          int
	now               func() time.Time
	onEvicted         func(string, any)
}

// New creates a cache. Expired items are purged by Run.
func New(opts Options) *Cache {
	return &Cache{
		items:             make(map[string]Item),
		defaultExpiration: opts.TTL,
		cleanupInterval:   opts.CleanupInterval,
		maxItems:          opts.MaxItems,
		now:               time.Now,
	}
}

// Set adds an item to the cache with the default expiration
func (c *Cache) Set(key string, value any) {
	c.SetWithExpiration(key, value, c.defaultExpiration)
}

// SetWithExpiration adds an item to the cache with a specific expiration time
func (c *Cache) SetWithExpiration(key string, value any, d time.Duration) {
	var exp int64
	if d > 0 {
		exp = c.now().Add(d).UnixNano()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.evictOldest()
	}

	c.items[key] = Item{
		Value:      value,
		Expiration: exp,
	}
}

// Get retrieves an item from the cache
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found || item.expiredAt(c.now().UnixNano()) {
		return nil, false
	}
	return item.Value, true
}

// GetOrLoad returns the cached value for key or stores the result of load.
// Concurrent misses call load once. Errors are not cached.
func (c *Cache) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, found := c.items[key]; found && c.onEvicted != nil {
		c.onEvicted(key, item.Value)
	}

	delete(c.items, key)
}

// Flush removes all items from the cache
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvicted != nil {
		for k, v := range c.items {
			c.onEvicted(k, v.Value)
		}
	}

	c.items = make(map[string]Item)
}

// Count returns the number of items in the cache (including expired items)
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// SetOnEvicted sets the callback to be called when an item is evicted
func (c *Cache) SetOnEvicted(f func(string, any)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onEvicted = f
}

// Run purges expired items every cleanup interval until ctx is done.
func (c *Cache) Run(ctx context.Context) error {
	if c.cleanupInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

// deleteExpired deletes all expired items from the cache
func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	for k, v := range c.items {
		if v.expiredAt(now) {
			if c.onEvicted != nil {
				c.onEvicted(k, v.Value)
			}
			delete(c.items, k)
		}
	}
}

// evictOldest removes the item closest to expiry. Items without expiry
// go last.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime int64

	for k, v := range c.items {
		if oldestKey == "" || (v.Expiration != 0 && (oldestTime == 0 || v.Expiration < oldestTime)) {
			oldestKey = k
			oldestTime = v.Expiration
		}
	}

	if oldestKey == "" {
		return
	}
	if c.onEvicted != nil {
		c.onEvicted(oldestKey, c.items[oldestKey].Value)
	}
	delete(c.items, oldestKey)
}
