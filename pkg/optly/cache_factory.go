package optly

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fivetwenty-io/optly/internal/constants"
)

// CacheType represents the type of cache backend.
type CacheType string

const (
	// CacheTypeMemory represents in-memory cache.
	CacheTypeMemory CacheType = "memory"

	// CacheTypeNATS represents NATS KV cache.
	CacheTypeNATS CacheType = "nats"

	// CacheTypeLayered keeps a memory cache in front of a NATS KV cache.
	CacheTypeLayered CacheType = "layered"

	// CacheTypeNone represents no caching.
	CacheTypeNone CacheType = "none"
)

// CacheConfig configures the cache used for asset detail responses.
type CacheConfig struct {
	// Type is the cache backend type
	Type CacheType

	// Memory cache configuration
	Memory *MemoryCacheConfig

	// NATS KV cache configuration
	NATS *NATSKVConfig

	// Common options applied to any backend. If nil, DefaultCacheOptions() is used.
	Options *CacheOptions
}

// MemoryCacheConfig configures memory cache.
type MemoryCacheConfig struct {
	// MaxSize is the maximum number of items in the cache
	MaxSize int
}

// DefaultCacheConfig returns a memory cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Type: CacheTypeMemory,
		Memory: &MemoryCacheConfig{
			MaxSize: constants.DefaultCacheSize,
		},
		Options: DefaultCacheOptions(),
	}
}

// ParseCacheType validates a cache type name.
func ParseCacheType(name string) (CacheType, error) {
	switch CacheType(name) {
	case CacheTypeMemory, CacheTypeNATS, CacheTypeLayered, CacheTypeNone:
		return CacheType(name), nil
	case "":
		return CacheTypeNone, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedCacheType, name)
	}
}

// NewCacheFromConfig creates a cache backend from configuration.
func NewCacheFromConfig(config *CacheConfig) (Cache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	switch config.Type {
	case CacheTypeMemory:
		return NewMemoryCacheFromConfig(config.Memory), nil

	case CacheTypeNATS:
		if config.NATS == nil {
			return nil, ErrNATSConfigRequired
		}

		cache, err := NewNATSKVCache(config.NATS)
		if err != nil {
			return nil, err
		}

		return cache, nil

	case CacheTypeLayered:
		if config.NATS == nil {
			return nil, ErrNATSConfigRequired
		}

		shared, err := NewNATSKVCache(config.NATS)
		if err != nil {
			return nil, err
		}

		return NewCacheChain(NewMemoryCacheFromConfig(config.Memory), shared), nil

	case CacheTypeNone:
		return NewNoOpCache(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCacheType, config.Type)
	}
}

// NewMemoryCacheFromConfig creates a memory cache from configuration.
func NewMemoryCacheFromConfig(config *MemoryCacheConfig) *MemoryCache {
	if config == nil {
		return NewMemoryCache(constants.DefaultCacheSize)
	}

	return NewMemoryCache(config.MaxSize)
}

// NoOpCache is a cache that does nothing (no caching).
type NoOpCache struct{}

// NewNoOpCache creates a new no-op cache.
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Get always returns an error (nothing cached).
func (c *NoOpCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	return nil, ErrCacheDisabled
}

// Set does nothing.
func (c *NoOpCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	return nil
}

// Delete does nothing.
func (c *NoOpCache) Delete(ctx context.Context, key string) error {
	return nil
}

// Clear does nothing.
func (c *NoOpCache) Clear(ctx context.Context) error {
	return nil
}

// Has always returns false.
func (c *NoOpCache) Has(ctx context.Context, key string) bool {
	return false
}

// CacheBuilder helps build cache configurations.
type CacheBuilder struct {
	config *CacheConfig
}

// NewCacheBuilder creates a new cache builder.
func NewCacheBuilder() *CacheBuilder {
	return &CacheBuilder{
		config: &CacheConfig{
			Type:    CacheTypeMemory,
			Options: DefaultCacheOptions(),
		},
	}
}

// WithType sets the cache type.
func (b *CacheBuilder) WithType(cacheType CacheType) *CacheBuilder {
	b.config.Type = cacheType

	return b
}

// WithMemoryConfig sets memory cache configuration.
func (b *CacheBuilder) WithMemoryConfig(maxSize int) *CacheBuilder {
	b.config.Memory = &MemoryCacheConfig{MaxSize: maxSize}

	return b
}

// WithNATSConfig sets NATS cache configuration.
func (b *CacheBuilder) WithNATSConfig(config *NATSKVConfig) *CacheBuilder {
	b.config.NATS = config

	return b
}

// WithOptions sets cache options.
func (b *CacheBuilder) WithOptions(options *CacheOptions) *CacheBuilder {
	b.config.Options = options

	return b
}

// Config returns the configuration built so far.
func (b *CacheBuilder) Config() *CacheConfig {
	return b.config
}

// Build creates the cache from the configuration.
func (b *CacheBuilder) Build() (Cache, error) {
	return NewCacheFromConfig(b.config)
}

// CacheChain looks keys up in order, so a fast local cache can sit in front of
// a shared one. Writes go to every layer.
type CacheChain struct {
	layers []Cache
}

// NewCacheChain creates a chain; the first cache is consulted first.
func NewCacheChain(layers ...Cache) *CacheChain {
	return &CacheChain{layers: layers}
}

// Get returns the first hit and copies it into the layers in front of it.
func (c *CacheChain) Get(ctx context.Context, key string) (*CacheEntry, error) {
	for depth, layer := range c.layers {
		entry, err := layer.Get(ctx, key)
		if err != nil {
			continue
		}

		for _, front := range c.layers[:depth] {
			_ = front.Set(ctx, key, entry)
		}

		return entry, nil
	}

	return nil, ErrKeyNotFoundInAnyCache
}

// Set writes the entry to every layer.
func (c *CacheChain) Set(ctx context.Context, key string, entry *CacheEntry) error {
	return c.each(func(layer Cache) error { return layer.Set(ctx, key, entry) })
}

// Delete removes the key from every layer.
func (c *CacheChain) Delete(ctx context.Context, key string) error {
	return c.each(func(layer Cache) error { return layer.Delete(ctx, key) })
}

// Clear empties every layer.
func (c *CacheChain) Clear(ctx context.Context) error {
	return c.each(func(layer Cache) error { return layer.Clear(ctx) })
}

// Has reports whether any layer holds the key.
func (c *CacheChain) Has(ctx context.Context, key string) bool {
	for _, layer := range c.layers {
		if layer.Has(ctx, key) {
			return true
		}
	}

	return false
}

// Close closes the layers that hold connections.
func (c *CacheChain) Close() error {
	return c.each(func(layer Cache) error {
		closer, ok := layer.(io.Closer)
		if !ok {
			return nil
		}

		return closer.Close()
	})
}

// each applies op to every layer and joins the failures.
func (c *CacheChain) each(op func(Cache) error) error {
	var errs []error

	for _, layer := range c.layers {
		if err := op(layer); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
