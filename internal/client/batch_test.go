package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/optly/pkg/optly"
)

func searchHits(ids ...int) []optly.Asset {
	hits := make([]optly.Asset, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, optly.Asset{"id": json.Number(fmt.Sprint(id)), "type": "page"})
	}

	return hits
}

func TestClient_FetchDetails_Concurrent(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			seen := peak.Load()
			if current <= seen || peak.CompareAndSwap(seen, current) {
				break
			}
		}

		time.Sleep(20 * time.Millisecond)

		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		_, _ = fmt.Fprintf(w, `{"id": %s, "name": "page-%s"}`, id, id)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(config *optly.Config) {
		config.DetailConcurrency = 3
	})

	detailed, err := client.fetchDetails(context.Background(), searchHits(1, 2, 3, 4, 5, 6))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, assetIDs(t, detailed))
	assert.Equal(t, "page-4", detailed[3]["name"])
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestClient_FetchDetails_Error(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/2") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code": "NOT_FOUND", "message": "page 2 is gone"}`))

			return
		}

		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		_, _ = fmt.Fprintf(w, `{"id": %s}`, id)
	}))
	defer server.Close()

	for _, concurrency := range []int{1, 4} {
		client := newTestClient(t, server.URL, func(config *optly.Config) {
			config.DetailConcurrency = concurrency
		})

		_, err := client.fetchDetails(context.Background(), searchHits(1, 2, 3))
		require.Error(t, err, "concurrency %d", concurrency)
		assert.True(t, optly.IsNotFound(err), "concurrency %d", concurrency)
	}
}

func TestClient_FetchDetails_Sequential(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		paths []string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		_, _ = fmt.Fprintf(w, `{"id": %s}`, id)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)

	detailed, err := client.fetchDetails(context.Background(), searchHits(3, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, assetIDs(t, detailed))
	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"/v2/pages/3", "/v2/pages/1", "/v2/pages/2"}, paths)
}
