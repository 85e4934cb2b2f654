package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fivetwenty-io/optly/internal/auth"
	"github.com/fivetwenty-io/optly/internal/constants"
	"github.com/fivetwenty-io/optly/internal/http"
	"github.com/fivetwenty-io/optly/pkg/optly"
)

// Static errors for err113 compliance.
var (
	ErrAPIEndpointRequired    = errors.New("API endpoint is required")
	ErrEventsEndpointRequired = errors.New("events endpoint is required")
)

// Client implements the optly.Client interface.
type Client struct {
	httpClient     *http.Client
	eventsClient   *http.Client
	tokenManager   auth.TokenManager
	logger         optly.Logger
	projectID      int64
	accountID      int64
	maxSearchPages int

	detailConcurrency int

	cache        optly.Cache
	cacheManager *optly.CacheManager

	search     *SearchClient
	assets     map[optly.AssetType]*AssetsClient
	dispatcher *EventDispatcher
}

// createTokenManager creates the token manager for the configured token.
func createTokenManager(config *optly.Config) auth.TokenManager {
	if config.AccessToken == "" {
		return nil // No authentication
	}

	return auth.NewStaticTokenManager(config.AccessToken, config.TokenExpiresAt)
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *optly.Config) []http.Option {
	var httpOpts []http.Option

	if config.Logger != nil {
		httpOpts = append(httpOpts, http.WithLogger(&loggerAdapter{logger: config.Logger}))
	}

	if config.Debug {
		httpOpts = append(httpOpts, http.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, http.WithUserAgent(config.UserAgent))
	}

	if config.HTTPTimeout > 0 {
		httpOpts = append(httpOpts, http.WithTimeout(config.HTTPTimeout))
	}

	for _, interceptor := range config.RequestInterceptors {
		httpOpts = append(httpOpts, http.WithRequestInterceptor(interceptor))
	}

	for _, interceptor := range config.ResponseInterceptors {
		httpOpts = append(httpOpts, http.WithResponseInterceptor(interceptor))
	}

	if config.RetryMax > 0 {
		retryWaitMin := 1 * time.Second
		retryWaitMax := constants.ExtendedRetryWaitMax

		if config.RetryWaitMin > 0 {
			retryWaitMin = config.RetryWaitMin
		}

		if config.RetryWaitMax > 0 {
			retryWaitMax = config.RetryWaitMax
		}

		httpOpts = append(httpOpts, http.WithRetryConfig(config.RetryMax, retryWaitMin, retryWaitMax))
	}

	return httpOpts
}

// createCache builds the detail cache, or returns nils when caching is off.
func createCache(config *optly.CacheConfig) (optly.Cache, *optly.CacheManager, error) {
	if config == nil || config.Type == optly.CacheTypeNone {
		return nil, nil, nil
	}

	cache, err := optly.NewCacheFromConfig(config)
	if err != nil {
		return nil, nil, fmt.Errorf("creating cache: %w", err)
	}

	return cache, optly.NewCacheManager(cache, config.Options), nil
}

// New creates a new Optimizely API client.
func New(config *optly.Config) (*Client, error) {
	if config.APIEndpoint == "" {
		return nil, ErrAPIEndpointRequired
	}

	if config.EventsEndpoint == "" {
		return nil, ErrEventsEndpointRequired
	}

	tokenManager := createTokenManager(config)

	return NewWithTokenManager(config, tokenManager)
}

// NewWithTokenManager creates a new client with a custom token manager.
func NewWithTokenManager(config *optly.Config, tokenManager auth.TokenManager) (*Client, error) {
	if config.APIEndpoint == "" {
		return nil, ErrAPIEndpointRequired
	}

	httpOpts := createHTTPClientOptions(config)

	httpClient := http.NewClient(config.APIEndpoint, tokenManager, httpOpts...)

	// The Event API takes no credentials.
	eventsClient := http.NewClient(config.EventsEndpoint, nil, httpOpts...)

	cache, cacheManager, err := createCache(config.Cache)
	if err != nil {
		return nil, err
	}

	maxSearchPages := config.MaxSearchPages
	if maxSearchPages <= 0 {
		maxSearchPages = constants.DefaultMaxSearchPages
	}

	detailConcurrency := config.DetailConcurrency
	if detailConcurrency <= 0 {
		detailConcurrency = constants.DefaultDetailConcurrency
	}

	client := &Client{
		httpClient:        httpClient,
		eventsClient:      eventsClient,
		tokenManager:      tokenManager,
		logger:            config.Logger,
		projectID:         config.ProjectID,
		accountID:         config.AccountID,
		maxSearchPages:    maxSearchPages,
		detailConcurrency: detailConcurrency,
		cache:             cache,
		cacheManager:      cacheManager,
	}

	client.initializeResourceClients()

	return client, nil
}

func (c *Client) initializeResourceClients() {
	c.search = NewSearchClient(c.httpClient)
	c.dispatcher = NewEventDispatcher(c.eventsClient)
	c.assets = make(map[optly.AssetType]*AssetsClient, len(assetEndpoints))

	for _, assetType := range optly.AllAssetTypes() {
		assets, err := NewAssetsClient(c.httpClient, assetType, c.cacheManager, c.logger)
		if err == nil {
			c.assets[assetType] = assets
		}
	}
}

// GetTokenManager returns the token manager for this client.
func (c *Client) GetTokenManager() auth.TokenManager {
	return c.tokenManager
}

// CacheStats returns detail cache statistics, or nil when caching is off.
func (c *Client) CacheStats() *optly.CacheStats {
	if c.cacheManager == nil {
		return nil
	}

	return c.cacheManager.GetStats()
}

// Get implements optly.Client.Get. Non-archived and archived passes share the
// page counter; each pass stops once the Link header no longer advertises a
// last page.
func (c *Client) Get(ctx context.Context, types []optly.AssetType, opts *optly.GetOptions) (*optly.Result, error) {
	if len(types) == 0 {
		return nil, optly.ErrNoAssetTypes
	}

	if c.projectID == 0 {
		return nil, optly.ErrProjectIDRequired
	}

	if opts == nil {
		opts = &optly.GetOptions{}
	}

	items := make([]optly.Asset, 0)
	activeDone := false
	archivedDone := !opts.IncludeArchived

	for page := 1; !activeDone || !archivedDone; page++ {
		if page > c.maxSearchPages {
			return nil, fmt.Errorf("%w: stopped after %d pages", optly.ErrPaginationLimitExceeded, c.maxSearchPages)
		}

		if !activeDone {
			pageItems, more, err := c.fetchPage(ctx, types, page, false, opts.AllAssetData)
			if err != nil {
				return nil, err
			}

			items = append(items, pageItems...)
			activeDone = !more
		}

		if !archivedDone {
			pageItems, more, err := c.fetchPage(ctx, types, page, true, opts.AllAssetData)
			if err != nil {
				return nil, err
			}

			items = append(items, pageItems...)
			archivedDone = !more
		}
	}

	c.logInfo("search complete", map[string]interface{}{
		"types": types,
		"items": len(items),
	})

	return optly.NewListResult(items), nil
}

func (c *Client) fetchPage(ctx context.Context, types []optly.AssetType, page int, archived, allData bool) ([]optly.Asset, bool, error) {
	params := &optly.SearchParams{
		ProjectID: c.projectID,
		Types:     types,
		Page:      page,
		PerPage:   constants.SearchPageSize,
		Archived:  archived,
	}

	result, err := c.search.Search(ctx, params)
	if err != nil {
		return nil, false, err
	}

	c.logDebug("search page fetched", map[string]interface{}{
		"page":     page,
		"archived": archived,
		"items":    len(result.Items),
	})

	if !allData {
		return result.Items, result.HasMore(), nil
	}

	detailed, err := c.fetchDetails(ctx, result.Items)
	if err != nil {
		return nil, false, err
	}

	return detailed, result.HasMore(), nil
}

func (c *Client) fetchDetail(ctx context.Context, hit optly.Asset) (optly.Asset, error) {
	assets, err := c.Assets(hit.Type())
	if err != nil {
		return nil, err
	}

	id, err := hit.ID()
	if err != nil {
		return nil, fmt.Errorf("reading %s search hit: %w", hit.Type(), err)
	}

	asset, err := assets.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching asset details: %w", err)
	}

	return asset, nil
}

// ReadCSV implements optly.Client.ReadCSV.
func (c *Client) ReadCSV(path string, delimiter rune) (*optly.Result, error) {
	file, err := os.Open(path) // #nosec G304 -- path is supplied by the caller
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	defer func() { _ = file.Close() }()

	result, err := c.ReadCSVFrom(file, delimiter)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return result, nil
}

// ReadCSVFrom implements optly.Client.ReadCSVFrom.
func (c *Client) ReadCSVFrom(r io.Reader, delimiter rune) (*optly.Result, error) {
	table, err := optly.ReadTable(r, delimiter)
	if err != nil {
		return nil, err
	}

	c.logDebug("event table loaded", map[string]interface{}{
		"rows":    table.Len(),
		"columns": table.Columns(),
	})

	return optly.NewTableResult(table, c.accountID, c.dispatcher), nil
}

// Search implements optly.Client.Search.
func (c *Client) Search() optly.SearchClient {
	return c.search
}

// Assets implements optly.Client.Assets.
func (c *Client) Assets(assetType optly.AssetType) (optly.AssetsClient, error) {
	assets, ok := c.assets[assetType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", optly.ErrUnknownAssetType, assetType)
	}

	return assets, nil
}

// Dispatcher implements optly.Client.Dispatcher.
func (c *Client) Dispatcher() optly.EventDispatcher {
	return c.dispatcher
}

// Close implements optly.Client.Close.
func (c *Client) Close() error {
	closer, ok := c.cache.(io.Closer)
	if !ok {
		return nil
	}

	err := closer.Close()
	if err != nil {
		return fmt.Errorf("closing cache: %w", err)
	}

	return nil
}

func (c *Client) logDebug(msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, fields)
	}
}

func (c *Client) logInfo(msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.Info(msg, fields)
	}
}

// loggerAdapter adapts optly.Logger to http.Logger.
type loggerAdapter struct {
	logger optly.Logger
}

func (l *loggerAdapter) Debug(msg string, fields map[string]interface{}) {
	l.logger.Debug(msg, fields)
}

func (l *loggerAdapter) Info(msg string, fields map[string]interface{}) {
	l.logger.Info(msg, fields)
}

func (l *loggerAdapter) Warn(msg string, fields map[string]interface{}) {
	l.logger.Warn(msg, fields)
}

func (l *loggerAdapter) Error(msg string, fields map[string]interface{}) {
	l.logger.Error(msg, fields)
}
