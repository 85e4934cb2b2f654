package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fivetwenty-io/optly/internal/http"
	"github.com/fivetwenty-io/optly/pkg/optly"
)

// assetEndpoint is a detail endpoint template and the name of its id
// parameter.
type assetEndpoint struct {
	template string
	idField  string
}

var assetEndpoints = map[optly.AssetType]assetEndpoint{
	optly.AssetTypeAudience:   {template: "/v2/audiences/{audience_id}", idField: "audience_id"},
	optly.AssetTypeCampaign:   {template: "/v2/campaigns/{campaign_id}", idField: "campaign_id"},
	optly.AssetTypeEvent:      {template: "/v2/events/{event_id}", idField: "event_id"},
	optly.AssetTypeExperiment: {template: "/v2/experiments/{experiment_id}", idField: "experiment_id"},
	optly.AssetTypeFeature:    {template: "/v2/features/{feature_id}", idField: "feature_id"},
	optly.AssetTypePage:       {template: "/v2/pages/{page_id}", idField: "page_id"},
}

func (e assetEndpoint) path(id int64) string {
	return strings.Replace(e.template, "{"+e.idField+"}", strconv.FormatInt(id, 10), 1)
}

// AssetsClient implements optly.AssetsClient for one asset type.
type AssetsClient struct {
	httpClient *http.Client
	assetType  optly.AssetType
	endpoint   assetEndpoint
	cache      *optly.CacheManager
	logger     optly.Logger
}

// NewAssetsClient creates a detail client. cache and logger may be nil.
func NewAssetsClient(httpClient *http.Client, assetType optly.AssetType, cache *optly.CacheManager, logger optly.Logger) (*AssetsClient, error) {
	endpoint, ok := assetEndpoints[assetType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", optly.ErrUnknownAssetType, assetType)
	}

	return &AssetsClient{
		httpClient: httpClient,
		assetType:  assetType,
		endpoint:   endpoint,
		cache:      cache,
		logger:     logger,
	}, nil
}

// Get implements optly.AssetsClient.Get.
func (c *AssetsClient) Get(ctx context.Context, id int64) (optly.Asset, error) {
	path := c.endpoint.path(id)

	var key string

	if c.cache != nil {
		key = c.cache.GetCacheKey("GET", path)

		data, err := c.cache.Get(ctx, key)
		if err == nil {
			asset, err := decodeAsset(data)
			if err == nil {
				return asset, nil
			}
		}
	}

	resp, err := c.httpClient.Get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("getting %s %d: %w", c.assetType, id, err)
	}

	asset, err := decodeAsset(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s %d: %w", c.assetType, id, err)
	}

	if c.cache != nil {
		err = c.cache.Set(ctx, key, resp.Body, 0)
		if err != nil && c.logger != nil {
			c.logger.Debug("cache write failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	return asset, nil
}
