package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryCache is a TTL-bounded map with least-recently-used eviction once
// maxSize entries are held. A ttl of zero means entries never expire.
type MemoryCache struct {
	items   map[string]*entry
	mutex   sync.Mutex
	maxSize int
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	hits      int64
	misses    int64
	evictions int64

	cleanup   *time.Ticker
	stopCh    chan struct{}
	closeOnce sync.Once
}

type entry struct {
	value     any
	expiresAt time.Time
	lastUsed  time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func NewMemoryCache(maxSize int, ttl time.Duration, logger *zap.Logger) *MemoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSize <= 0 {
		maxSize = 1024
	}

	c := &MemoryCache{
		items:   make(map[string]*entry),
		maxSize: maxSize,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	c.cleanup = time.NewTicker(time.Minute)
	go c.cleanupExpired()

	return c
}

func (c *MemoryCache) Set(ctx context.Context, key string, value any) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

func (c *MemoryCache) SetWithTTL(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evictLRU(now)
	}

	e := &entry{value: value, lastUsed: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	c.items[key] = e
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (any, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	e, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, ErrCacheMiss
	}
	if e.expired(now) {
		delete(c.items, key)
		c.misses++
		return nil, ErrCacheMiss
	}

	e.lastUsed = now
	c.hits++
	return e.value, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
	return nil
}

func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, exists := c.items[key]
	return exists && !e.expired(c.now()), nil
}

func (c *MemoryCache) GetTTL(_ context.Context, key string) (time.Duration, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	e, exists := c.items[key]
	if !exists || e.expired(now) {
		return 0, ErrCacheMiss
	}
	if e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(now), nil
}

func (c *MemoryCache) GetStats(_ context.Context) (*CacheStats, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	stats := &CacheStats{
		Items:     len(c.items),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		MaxSize:   c.maxSize,
	}
	for _, e := range c.items {
		if e.expired(now) {
			stats.Expired++
		}
	}
	return stats, nil
}

func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() {
		c.cleanup.Stop()
		close(c.stopCh)
	})
	return nil
}

// evictLRU drops expired entries first and, if none were expired, the least
// recently used one. Caller holds the mutex.
func (c *MemoryCache) evictLRU(now time.Time) {
	if c.purgeExpired(now) > 0 {
		return
	}

	var oldestKey string
	var oldestTime time.Time
	for key, e := range c.items {
		if oldestKey == "" || e.lastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastUsed
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
		c.evictions++
		c.logger.Debug("Evicted cache entry", zap.String("key", oldestKey))
	}
}

func (c *MemoryCache) purgeExpired(now time.Time) int {
	purged := 0
	for key, e := range c.items {
		if e.expired(now) {
			delete(c.items, key)
			purged++
		}
	}
	return purged
}

func (c *MemoryCache) cleanupExpired() {
	for {
		select {
		case <-c.cleanup.C:
			c.mutex.Lock()
			c.purgeExpired(c.now())
			c.mutex.Unlock()
		case <-c.stopCh:
			return
		}
	}
}
