package optly

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// AssetType identifies a kind of Optimizely configuration object.
type AssetType string

// Asset types understood by the search and detail endpoints.
const (
	AssetTypeAudience   AssetType = "audience"
	AssetTypeCampaign   AssetType = "campaign"
	AssetTypeEvent      AssetType = "event"
	AssetTypeExperiment AssetType = "experiment"
	AssetTypeFeature    AssetType = "feature"
	AssetTypePage       AssetType = "page"
)

// AllAssetTypes lists every supported asset type.
func AllAssetTypes() []AssetType {
	return []AssetType{
		AssetTypeAudience,
		AssetTypeCampaign,
		AssetTypeEvent,
		AssetTypeExperiment,
		AssetTypeFeature,
		AssetTypePage,
	}
}

// ParseAssetType accepts singular or plural names ("experiments", "Experiment").
func ParseAssetType(name string) (AssetType, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))

	for _, assetType := range AllAssetTypes() {
		if normalized == string(assetType) || normalized == string(assetType)+"s" {
			return assetType, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownAssetType, name)
}

// Plural returns the collection name used in REST paths.
func (t AssetType) Plural() string {
	return string(t) + "s"
}

// Asset is an opaque Optimizely object. Numbers decode as json.Number so ids
// survive without float rounding.
type Asset map[string]interface{}

// ID returns the asset's integer id.
func (a Asset) ID() (int64, error) {
	raw, ok := a["id"]
	if !ok {
		return 0, fmt.Errorf("%w: no id field", ErrInvalidAssetID)
	}

	switch v := raw.(type) {
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidAssetID, v)
		}

		return id, nil
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAssetID, v)
		}

		return id, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidAssetID, raw)
	}
}

// Type returns the asset's type tag, or "" when absent.
func (a Asset) Type() AssetType {
	if s, ok := a["type"].(string); ok {
		return AssetType(s)
	}

	return ""
}

// GetOptions controls Client.Get.
type GetOptions struct {
	// AllAssetData re-fetches every search hit through its detail endpoint.
	AllAssetData bool
	// IncludeArchived runs a second pagination pass with archived=True.
	IncludeArchived bool
}

// SearchParams describes one request to the search endpoint.
type SearchParams struct {
	ProjectID int64
	Types     []AssetType
	Page      int
	PerPage   int
	Archived  bool
}

// ToValues converts the params into the search query string.
func (p *SearchParams) ToValues() url.Values {
	values := url.Values{}
	values.Set("project_id", strconv.FormatInt(p.ProjectID, 10))

	if p.PerPage > 0 {
		values.Set("per_page", strconv.Itoa(p.PerPage))
	}

	values.Set("query", "")

	for _, assetType := range p.Types {
		values.Add("type", string(assetType))
	}

	if p.Archived {
		values.Set("archived", "True")
	}

	if p.Page > 0 {
		values.Set("page", strconv.Itoa(p.Page))
	}

	return values
}

// SearchPage is one page of search results.
type SearchPage struct {
	Items []Asset
	// Link is the raw Link response header.
	Link string
}

// HasMore reports whether the server advertised further pages.
func (p *SearchPage) HasMore() bool {
	return HasLastRelation(p.Link)
}

// HasLastRelation reports whether a Link header carries a rel=last entry. The
// search endpoint drops that entry on the final page.
func HasLastRelation(link string) bool {
	if link == "" {
		return false
	}

	for _, part := range strings.Split(link, ",") {
		for _, param := range strings.Split(part, ";") {
			key, value, found := strings.Cut(strings.TrimSpace(param), "=")
			if !found || !strings.EqualFold(strings.TrimSpace(key), "rel") {
				continue
			}

			for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(value), `"`)) {
				if strings.EqualFold(rel, "last") {
					return true
				}
			}
		}
	}

	return false
}
