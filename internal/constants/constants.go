package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration and export files.
	ConfigFilePerm = 0600
)

// Endpoints.
const (
	// DefaultAPIEndpoint is the Optimizely REST API host.
	DefaultAPIEndpoint = "https://api.optimizely.com"

	// DefaultEventsEndpoint is the Optimizely Event API ingestion URL.
	DefaultEventsEndpoint = "https://logx.optimizely.com/v1/events"

	// SearchPath is the REST search endpoint.
	SearchPath = "/v2/search"
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry limits.
const (
	// DefaultRetryMax is the default maximum number of retries.
	DefaultRetryMax = 5

	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 10 * time.Second

	// ExtendedRetryWaitMax is used for operations that need longer waits.
	ExtendedRetryWaitMax = 30 * time.Second
)

// HTTP status codes commonly used.
const (
	// HTTPStatusBadRequest is the first client error status.
	HTTPStatusBadRequest = 400
)

// Pagination.
const (
	// SearchPageSize is the per_page value sent to the search endpoint.
	SearchPageSize = 100

	// DefaultMaxSearchPages bounds the search loop when the Link header misbehaves.
	DefaultMaxSearchPages = 1000

	// DefaultDetailConcurrency is the number of detail requests in flight per page.
	DefaultDetailConcurrency = 1
)

// Authentication.
const (
	// TokenExpirationBuffer treats tokens as expired slightly before their deadline.
	TokenExpirationBuffer = 30 * time.Second

	// BearerPrefix is the Authorization scheme prefix.
	BearerPrefix = "Bearer "
)

// Cache sizing.
const (
	// DefaultCacheSize is the default number of entries kept in memory.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is how long a detail response stays cached.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultNATSBucket is the KV bucket used when none is configured.
	DefaultNATSBucket = "optly_assets"
)

// Payload defaults.
const (
	// DefaultClientName is reported as client_name in event payloads.
	DefaultClientName = "optly_api"

	// DefaultClientVersion is reported as client_version in event payloads.
	DefaultClientVersion = "0.1"
)

// Format constants.
const (
	// FormatJSON selects JSON output.
	FormatJSON = "json"

	// FormatYAML selects YAML output.
	FormatYAML = "yaml"

	// FormatTable selects table output.
	FormatTable = "table"

	// NotAvailable is shown for missing values in tables.
	NotAvailable = "N/A"

	// MaskedSecret replaces secrets in displayed configuration.
	MaskedSecret = "***"
)
