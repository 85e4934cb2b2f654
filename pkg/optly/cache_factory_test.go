package optly_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/optly/pkg/optly"
)

func TestCacheFactory_MemoryCache(t *testing.T) {
	t.Parallel()

	config := &optly.CacheConfig{
		Type:   optly.CacheTypeMemory,
		Memory: &optly.MemoryCacheConfig{MaxSize: 100},
	}

	cache, err := optly.NewCacheFromConfig(config)
	require.NoError(t, err)
	require.NotNil(t, cache)

	ctx := context.Background()
	entry := &optly.CacheEntry{
		Data:      []byte("test data"),
		ExpiresAt: time.Now().Add(1 * time.Hour),
	}

	require.NoError(t, cache.Set(ctx, "test-key", entry))

	retrieved, err := cache.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, entry.Data, retrieved.Data)

	require.NoError(t, cache.Delete(ctx, "test-key"))
	assert.False(t, cache.Has(ctx, "test-key"))
}

func TestCacheFactory_NoOpCache(t *testing.T) {
	t.Parallel()

	cache, err := optly.NewCacheFromConfig(&optly.CacheConfig{Type: optly.CacheTypeNone})
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "test-key", &optly.CacheEntry{Data: []byte("x")}))

	_, err = cache.Get(ctx, "test-key")
	require.ErrorIs(t, err, optly.ErrCacheDisabled)
	assert.False(t, cache.Has(ctx, "test-key"))
	require.NoError(t, cache.Delete(ctx, "test-key"))
	require.NoError(t, cache.Clear(ctx))
}

func TestCacheBuilder(t *testing.T) {
	t.Parallel()

	builder := optly.NewCacheBuilder().
		WithType(optly.CacheTypeMemory).
		WithMemoryConfig(50).
		WithOptions(&optly.CacheOptions{TTL: 10 * time.Minute, MaxSize: 50})

	assert.Equal(t, 10*time.Minute, builder.Config().Options.TTL)

	cache, err := builder.Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "builder-key", &optly.CacheEntry{Data: []byte("builder test")}))

	retrieved, err := cache.Get(ctx, "builder-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("builder test"), retrieved.Data)
}

func TestCacheChain(t *testing.T) {
	t.Parallel()

	l1Cache := optly.NewMemoryCache(10)
	l2Cache := optly.NewMemoryCache(100)
	chain := optly.NewCacheChain(l1Cache, l2Cache)

	ctx := context.Background()
	entry := &optly.CacheEntry{
		Data:      []byte("chain test"),
		ExpiresAt: time.Now().Add(1 * time.Hour),
	}

	require.NoError(t, chain.Set(ctx, "chain-key", entry))
	assert.True(t, l1Cache.Has(ctx, "chain-key"))
	assert.True(t, l2Cache.Has(ctx, "chain-key"))

	require.NoError(t, l1Cache.Delete(ctx, "chain-key"))

	// Served from L2 and back-filled into L1
	retrieved, err := chain.Get(ctx, "chain-key")
	require.NoError(t, err)
	assert.Equal(t, entry.Data, retrieved.Data)
	assert.True(t, l1Cache.Has(ctx, "chain-key"))

	require.NoError(t, chain.Delete(ctx, "chain-key"))
	assert.False(t, chain.Has(ctx, "chain-key"))

	_, err = chain.Get(ctx, "chain-key")
	require.ErrorIs(t, err, optly.ErrKeyNotFoundInAnyCache)
}

func TestDefaultCacheConfig(t *testing.T) {
	t.Parallel()

	config := optly.DefaultCacheConfig()
	assert.Equal(t, optly.CacheTypeMemory, config.Type)
	require.NotNil(t, config.Memory)
	assert.Equal(t, 1000, config.Memory.MaxSize)
	require.NotNil(t, config.Options)
	assert.Equal(t, 5*time.Minute, config.Options.TTL)
}

func TestParseCacheType(t *testing.T) {
	t.Parallel()

	cacheType, err := optly.ParseCacheType("nats")
	require.NoError(t, err)
	assert.Equal(t, optly.CacheTypeNATS, cacheType)

	cacheType, err = optly.ParseCacheType("")
	require.NoError(t, err)
	assert.Equal(t, optly.CacheTypeNone, cacheType)

	_, err = optly.ParseCacheType("redis")
	require.ErrorIs(t, err, optly.ErrUnsupportedCacheType)
}

func TestCacheFactory_InvalidType(t *testing.T) {
	t.Parallel()

	cache, err := optly.NewCacheFromConfig(&optly.CacheConfig{Type: optly.CacheType("invalid")})
	require.ErrorIs(t, err, optly.ErrUnsupportedCacheType)
	assert.Nil(t, cache)
}

func TestCacheFactory_NATS(t *testing.T) {
	t.Parallel()

	_, err := optly.NewCacheFromConfig(&optly.CacheConfig{Type: optly.CacheTypeNATS})
	require.ErrorIs(t, err, optly.ErrNATSConfigRequired)

	cache, err := optly.NewCacheFromConfig(&optly.CacheConfig{
		Type: optly.CacheTypeNATS,
		NATS: &optly.NATSKVConfig{
			URL:     "nats://127.0.0.1:1",
			Options: []nats.Option{nats.Timeout(200 * time.Millisecond)},
		},
	})
	require.Error(t, err)
	assert.Nil(t, cache)
	assert.Contains(t, err.Error(), "connecting to NATS")
}

func TestCacheFactory_Layered(t *testing.T) {
	t.Parallel()

	cacheType, err := optly.ParseCacheType("layered")
	require.NoError(t, err)
	assert.Equal(t, optly.CacheTypeLayered, cacheType)

	_, err = optly.NewCacheFromConfig(&optly.CacheConfig{
		Type:   optly.CacheTypeLayered,
		Memory: &optly.MemoryCacheConfig{MaxSize: 10},
	})
	require.ErrorIs(t, err, optly.ErrNATSConfigRequired)

	cache, err := optly.NewCacheBuilder().
		WithType(optly.CacheTypeLayered).
		WithMemoryConfig(10).
		WithNATSConfig(&optly.NATSKVConfig{
			URL:     "nats://127.0.0.1:1",
			Options: []nats.Option{nats.Timeout(200 * time.Millisecond)},
		}).
		Build()
	require.Error(t, err)
	assert.Nil(t, cache)
	assert.Contains(t, err.Error(), "connecting to NATS")
}

var errLayerDown = errors.New("layer down")

// brokenLayer fails every write and records whether it was closed.
type brokenLayer struct {
	optly.NoOpCache

	closed bool
}

func (b *brokenLayer) Set(ctx context.Context, key string, entry *optly.CacheEntry) error {
	return errLayerDown
}

func (b *brokenLayer) Close() error {
	b.closed = true

	return errLayerDown
}

func TestCacheChain_Failures(t *testing.T) {
	t.Parallel()

	front := optly.NewMemoryCache(10)
	broken := &brokenLayer{}
	chain := optly.NewCacheChain(front, broken)

	ctx := context.Background()

	// The healthy layer still receives the write.
	err := chain.Set(ctx, "key", &optly.CacheEntry{Data: []byte("v")})
	require.ErrorIs(t, err, errLayerDown)
	assert.True(t, front.Has(ctx, "key"))

	err = chain.Close()
	require.ErrorIs(t, err, errLayerDown)
	assert.True(t, broken.closed)

	require.NoError(t, chain.Clear(ctx))
	assert.False(t, chain.Has(ctx, "key"))
}

func TestCacheFactory_NilConfig(t *testing.T) {
	t.Parallel()

	cache, err := optly.NewCacheFromConfig(nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "default-key", &optly.CacheEntry{Data: []byte("default test")}))

	retrieved, err := cache.Get(ctx, "default-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("default test"), retrieved.Data)
}
