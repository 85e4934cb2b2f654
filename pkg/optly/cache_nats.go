package optly

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/fivetwenty-io/optly/internal/constants"
)

// NATSKVConfig configures a NATS JetStream key-value cache.
type NATSKVConfig struct {
	// URL of the NATS server. Defaults to nats.DefaultURL.
	URL string
	// Bucket is the KV bucket name. Defaults to "optly_assets".
	Bucket string
	// TTL is applied by the server to every key in the bucket.
	TTL time.Duration
	// Options are passed to nats.Connect.
	Options []nats.Option
}

// NATSKVCache stores cache entries in a JetStream KV bucket so several
// processes can share detail responses.
type NATSKVCache struct {
	conn *nats.Conn
	kv   jetstream.KeyValue
}

// NewNATSKVCache connects to NATS and creates or updates the bucket.
func NewNATSKVCache(config *NATSKVConfig) (*NATSKVCache, error) {
	if config == nil {
		return nil, ErrNATSConfigRequired
	}

	url := config.URL
	if url == "" {
		url = nats.DefaultURL
	}

	bucket := config.Bucket
	if bucket == "" {
		bucket = constants.DefaultNATSBucket
	}

	conn, err := nats.Connect(url, config.Options...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShortHTTPTimeout)
	defer cancel()

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "optly asset detail cache",
		TTL:         config.TTL,
	})
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("creating KV bucket %s: %w", bucket, err)
	}

	return NewNATSKVCacheFromKeyValue(conn, kv), nil
}

// NewNATSKVCacheFromKeyValue wraps an existing bucket. conn may be nil, in
// which case Close leaves the connection alone.
func NewNATSKVCacheFromKeyValue(conn *nats.Conn, kv jetstream.KeyValue) *NATSKVCache {
	return &NATSKVCache{conn: conn, kv: kv}
}

// KV keys are limited to a restricted alphabet; request paths are not.
func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Get returns the entry for key.
func (c *NATSKVCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	kvEntry, err := c.kv.Get(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCacheKeyNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("reading %s from KV: %w", key, err)
	}

	var entry CacheEntry

	err = json.Unmarshal(kvEntry.Value(), &entry)
	if err != nil {
		return nil, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}

	if entry.Expired() {
		_ = c.Delete(ctx, key)

		return nil, fmt.Errorf("%w: %s", ErrCacheEntryExpired, key)
	}

	return &entry, nil
}

// Set stores entry under key.
func (c *NATSKVCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}

	_, err = c.kv.Put(ctx, encodeKey(key), data)
	if err != nil {
		return fmt.Errorf("writing %s to KV: %w", key, err)
	}

	return nil
}

// Delete removes key.
func (c *NATSKVCache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, encodeKey(key))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("deleting %s from KV: %w", key, err)
	}

	return nil
}

// Clear deletes every key in the bucket.
func (c *NATSKVCache) Clear(ctx context.Context) error {
	lister, err := c.kv.ListKeys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("listing KV keys: %w", err)
	}

	defer func() { _ = lister.Stop() }()

	for key := range lister.Keys() {
		err := c.kv.Delete(ctx, key)
		if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("clearing KV key: %w", err)
		}
	}

	return nil
}

// Has reports whether a live entry exists for key.
func (c *NATSKVCache) Has(ctx context.Context, key string) bool {
	_, err := c.Get(ctx, key)

	return err == nil
}

// Close drains the NATS connection.
func (c *NATSKVCache) Close() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Drain()
	if err != nil {
		return fmt.Errorf("draining NATS connection: %w", err)
	}

	return nil
}
