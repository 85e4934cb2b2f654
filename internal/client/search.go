package client

import (
	"bytes"
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/fivetwenty-io/optly/internal/constants"
	"github.com/fivetwenty-io/optly/internal/http"
	"github.com/fivetwenty-io/optly/pkg/optly"
)

// SearchClient implements optly.SearchClient.
type SearchClient struct {
	httpClient *http.Client
}

// NewSearchClient creates a new search client.
func NewSearchClient(httpClient *http.Client) *SearchClient {
	return &SearchClient{
		httpClient: httpClient,
	}
}

// Search implements optly.SearchClient.Search.
func (c *SearchClient) Search(ctx context.Context, params *optly.SearchParams) (*optly.SearchPage, error) {
	resp, err := c.httpClient.Get(ctx, constants.SearchPath, params.ToValues())
	if err != nil {
		return nil, fmt.Errorf("searching page %d: %w", params.Page, err)
	}

	items, err := decodeAssets(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing search page %d: %w", params.Page, err)
	}

	return &optly.SearchPage{
		Items: items,
		Link:  resp.Headers.Get("Link"),
	}, nil
}

func decodeAssets(body []byte) ([]optly.Asset, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var items []optly.Asset

	err := decoder.Decode(&items)
	if err != nil {
		return nil, err
	}

	if items == nil {
		items = []optly.Asset{}
	}

	return items, nil
}

func decodeAsset(body []byte) (optly.Asset, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var asset optly.Asset

	err := decoder.Decode(&asset)
	if err != nil {
		return nil, err
	}

	return asset, nil
}
