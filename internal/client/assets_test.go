package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	optlyhttp "github.com/fivetwenty-io/optly/internal/http"
	"github.com/fivetwenty-io/optly/pkg/optly"
)

var errCacheUnavailable = errors.New("cache unavailable")

// readOnlyCache misses on every read and rejects every write.
type readOnlyCache struct {
	optly.NoOpCache
}

func (c *readOnlyCache) Set(ctx context.Context, key string, entry *optly.CacheEntry) error {
	return errCacheUnavailable
}

type logEntry struct {
	msg    string
	fields map[string]interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, logEntry{msg: msg, fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields map[string]interface{}) { l.record(msg, fields) }
func (l *recordingLogger) Info(msg string, fields map[string]interface{})  { l.record(msg, fields) }
func (l *recordingLogger) Warn(msg string, fields map[string]interface{})  { l.record(msg, fields) }
func (l *recordingLogger) Error(msg string, fields map[string]interface{}) { l.record(msg, fields) }

func TestAssetsClient_Get(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/campaigns/7", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": 7, "name": "Spring sale"}`))
	}))
	defer server.Close()

	assets, err := NewAssetsClient(optlyhttp.NewClient(server.URL, nil), optly.AssetTypeCampaign, nil, nil)
	require.NoError(t, err)

	asset, err := assets.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Spring sale", asset["name"])
}

func TestAssetsClient_UnknownType(t *testing.T) {
	t.Parallel()

	_, err := NewAssetsClient(optlyhttp.NewClient("http://127.0.0.1:0", nil), optly.AssetType("variation"), nil, nil)
	require.ErrorIs(t, err, optly.ErrUnknownAssetType)
}

func TestAssetsClient_CacheWriteFailureIsLogged(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 12, "key": "signup"}`))
	}))
	defer server.Close()

	logger := &recordingLogger{}
	cache := optly.NewCacheManager(&readOnlyCache{}, nil)

	assets, err := NewAssetsClient(optlyhttp.NewClient(server.URL, nil), optly.AssetTypeEvent, cache, logger)
	require.NoError(t, err)

	asset, err := assets.Get(context.Background(), 12)
	require.NoError(t, err, "a failed cache write does not fail the request")
	assert.Equal(t, "signup", asset["key"])

	require.Len(t, logger.entries, 1)
	assert.Equal(t, "cache write failed", logger.entries[0].msg)
	assert.Equal(t, "GET:/v2/events/12", logger.entries[0].fields["key"])
	assert.Contains(t, logger.entries[0].fields["error"], errCacheUnavailable.Error())
	assert.Equal(t, int64(0), cache.GetStats().Sets)
}
