package optly

import (
	"context"
	"io"
	"time"
)

// SearchClient fetches single pages from the search endpoint.
type SearchClient interface {
	Search(ctx context.Context, params *SearchParams) (*SearchPage, error)
}

// AssetsClient fetches one asset type by id through its detail endpoint.
type AssetsClient interface {
	Get(ctx context.Context, id int64) (Asset, error)
}

// EventDispatcher posts a serialized event payload to the Event API and
// reports the HTTP status it received.
type EventDispatcher interface {
	DispatchEvents(ctx context.Context, payload []byte) (int, error)
}

// Client is the Optimizely REST and Event API client.
type Client interface {
	// Get paginates the search endpoint over the given asset types.
	Get(ctx context.Context, types []AssetType, opts *GetOptions) (*Result, error)
	// ReadCSV loads a delimited file with a header row into a tabular Result.
	ReadCSV(path string, delimiter rune) (*Result, error)
	// ReadCSVFrom is ReadCSV over an arbitrary reader.
	ReadCSVFrom(r io.Reader, delimiter rune) (*Result, error)

	Search() SearchClient
	Assets(assetType AssetType) (AssetsClient, error)
	Dispatcher() EventDispatcher

	// Close releases cache connections.
	Close() error
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Config represents client configuration for building an optly.Client.
//
// # Authentication
//
// AccessToken is a personal access token or an OAuth access token. It is sent
// as "Authorization: Bearer <token>" on REST calls; a leading "Bearer " in the
// value is tolerated. When TokenExpiresAt is set, requests fail with
// ErrTokenExpired once the token is within 30 seconds of expiry. The Event API
// is called without credentials.
//
// # Timeouts, retries and pagination
//
// Per-request deadlines come from the context passed to each call. RetryMax,
// RetryWaitMin and RetryWaitMax tune retries of 5xx, 429 and connection
// failures; RetryMax 0 leaves the transport default in place. MaxSearchPages
// bounds Get when the Link header never stops advertising a last page.
type Config struct {
	// APIEndpoint is the REST API base URL. Defaults to https://api.optimizely.com.
	APIEndpoint string
	// EventsEndpoint is the full Event API URL. Defaults to
	// https://logx.optimizely.com/v1/events.
	EventsEndpoint string

	// AccountID is written into event payloads as account_id.
	AccountID int64
	// ProjectID scopes search requests.
	ProjectID int64

	// AccessToken is the bearer token for REST requests.
	AccessToken string
	// TokenExpiresAt is optional; zero means the token does not expire.
	TokenExpiresAt time.Time

	// HTTPTimeout caps each HTTP attempt.
	HTTPTimeout time.Duration
	// RetryMax is the maximum number of retries for transient failures.
	RetryMax int
	// RetryWaitMin is the minimum backoff between retries.
	RetryWaitMin time.Duration
	// RetryWaitMax is the maximum backoff between retries.
	RetryWaitMax time.Duration
	// MaxSearchPages bounds the search loop. 0 uses the default of 1000.
	MaxSearchPages int
	// DetailConcurrency is how many detail requests GetOptions.AllAssetData
	// issues at once per search page. 0 means one at a time.
	DetailConcurrency int

	// Debug enables request/response logging when a Logger is provided.
	Debug bool
	// Logger is an optional structured logger.
	Logger Logger
	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// RequestInterceptors run on every REST and Event API request after the
	// built-in headers, token and logging interceptors.
	RequestInterceptors []RequestInterceptor
	// ResponseInterceptors run on every response after it is read.
	ResponseInterceptors []ResponseInterceptor

	// Cache enables caching of detail responses. Nil disables caching.
	Cache *CacheConfig
}
