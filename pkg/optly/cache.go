package optly

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fivetwenty-io/optly/internal/constants"
)

// Cache stores raw response bodies keyed by request.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Has(ctx context.Context, key string) bool
}

// CacheEntry is one cached response body.
type CacheEntry struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry. A zero expiry never
// expires.
func (e *CacheEntry) Expired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// CacheOptions are the settings shared by every backend.
type CacheOptions struct {
	// TTL is how long detail responses stay cached.
	TTL time.Duration
	// MaxSize bounds the number of entries in memory backends.
	MaxSize int
}

// DefaultCacheOptions returns the default cache options.
func DefaultCacheOptions() *CacheOptions {
	return &CacheOptions{
		TTL:     constants.DefaultCacheTTL,
		MaxSize: constants.DefaultCacheSize,
	}
}

// MemoryCache is a mutex-guarded in-process cache that evicts the entry
// closest to expiry when full.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	maxSize int
}

// NewMemoryCache creates a memory cache holding at most maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = constants.DefaultCacheSize
	}

	return &MemoryCache{
		entries: make(map[string]*CacheEntry),
		maxSize: maxSize,
	}
}

// Get returns the entry for key.
func (c *MemoryCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCacheKeyNotFound, key)
	}

	if entry.Expired() {
		_ = c.Delete(ctx, key)

		return nil, fmt.Errorf("%w: %s", ErrCacheEntryExpired, key)
	}

	return entry, nil
}

// Set stores entry under key.
func (c *MemoryCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = entry

	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	return nil
}

// Clear removes every entry.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.mu.Unlock()

	return nil
}

// Has reports whether a live entry exists for key.
func (c *MemoryCache) Has(ctx context.Context, key string) bool {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	return ok && !entry.Expired()
}

// Cleanup drops expired entries.
func (c *MemoryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if entry.Expired() {
			delete(c.entries, key)
		}
	}
}

// evictOldest must be called with the write lock held.
func (c *MemoryCache) evictOldest() {
	var (
		oldestKey  string
		oldestTime time.Time
	)

	for key, entry := range c.entries {
		if oldestKey == "" || entry.ExpiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// CacheStats counts cache traffic.
type CacheStats struct {
	Hits   int64 `json:"hits"   yaml:"hits"`
	Misses int64 `json:"misses" yaml:"misses"`
	Sets   int64 `json:"sets"   yaml:"sets"`
}

// GetHitRate returns hits / (hits + misses), or 0 with no traffic.
func (s *CacheStats) GetHitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// CacheManager wraps a Cache with a TTL policy and statistics.
type CacheManager struct {
	cache   Cache
	options *CacheOptions

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// NewCacheManager creates a manager. A nil options uses DefaultCacheOptions.
func NewCacheManager(cache Cache, options *CacheOptions) *CacheManager {
	if options == nil {
		options = DefaultCacheOptions()
	}

	return &CacheManager{
		cache:   cache,
		options: options,
	}
}

// GetCacheKey builds the key for a request.
func (m *CacheManager) GetCacheKey(method, path string) string {
	return method + ":" + path
}

// Get returns cached data for key.
func (m *CacheManager) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := m.cache.Get(ctx, key)
	if err != nil {
		m.misses.Add(1)

		return nil, err
	}

	m.hits.Add(1)

	return entry.Data, nil
}

// Set stores data for key. A zero ttl uses the configured TTL.
func (m *CacheManager) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.options.TTL
	}

	entry := &CacheEntry{
		Data:      data,
		ExpiresAt: time.Now().Add(ttl),
	}

	err := m.cache.Set(ctx, key, entry)
	if err != nil {
		return fmt.Errorf("caching %s: %w", key, err)
	}

	m.sets.Add(1)

	return nil
}

// GetStats returns a snapshot of the counters.
func (m *CacheManager) GetStats() *CacheStats {
	return &CacheStats{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
		Sets:   m.sets.Load(),
	}
}
