package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/optly/internal/constants"
	"github.com/fivetwenty-io/optly/pkg/optly"
)

const (
	// JSON formatting.
	jsonIndent = "  "

	// Token display.
	visibleTokenChars = 4
)

// Common static errors used throughout the commands package.
var (
	ErrInvalidKeyValue    = errors.New("expected KEY=VALUE")
	ErrUnknownConfigKey   = errors.New("unknown configuration key")
	ErrInvalidOutput      = errors.New("invalid output format")
	ErrTokenRequired      = errors.New("token is required")
	ErrAssetTypeRequired  = errors.New("at least one --type is required")
	ErrConflictingOptions = errors.New("conflicting options")
)

// parseKeyValues turns repeated KEY=VALUE flags into a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	values := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w, got %q", ErrInvalidKeyValue, pair)
		}

		values[strings.TrimSpace(key)] = value
	}

	return values, nil
}

// parseAssetTypes accepts singular or plural type names.
func parseAssetTypes(names []string) ([]optly.AssetType, error) {
	if len(names) == 0 {
		return nil, ErrAssetTypeRequired
	}

	types := make([]optly.AssetType, 0, len(names))

	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			assetType, err := optly.ParseAssetType(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}

			types = append(types, assetType)
		}
	}

	return types, nil
}

func validateOutput(format string) error {
	switch format {
	case constants.FormatTable, constants.FormatJSON, constants.FormatYAML:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidOutput, format)
	}
}

func writeJSON(w io.Writer, value interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", jsonIndent)

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

func writeYAML(w io.Writer, value interface{}) error {
	encoder := yaml.NewEncoder(w)
	defer func() { _ = encoder.Close() }()

	err := encoder.Encode(plainValue(value))
	if err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}

// plainValue replaces json.Number with int64 or float64 so YAML renders
// numbers unquoted.
func plainValue(value interface{}) interface{} {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}

		if f, err := v.Float64(); err == nil {
			return f
		}

		return v.String()
	case optly.Asset:
		return plainValue(map[string]interface{}(v))
	case []optly.Asset:
		items := make([]interface{}, len(v))
		for i, item := range v {
			items[i] = plainValue(item)
		}

		return items
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			out[key] = plainValue(item)
		}

		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = plainValue(item)
		}

		return out
	default:
		return value
	}
}

// cell renders one asset field for table output.
func cell(asset optly.Asset, key string) string {
	value, ok := asset[key]
	if !ok || value == nil {
		return constants.NotAvailable
	}

	return optly.Stringify(value)
}

func renderAssets(w io.Writer, assets []optly.Asset, format string) error {
	switch format {
	case constants.FormatJSON:
		return writeJSON(w, assets)
	case constants.FormatYAML:
		return writeYAML(w, assets)
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Type", "Name", "Key", "Status")

	for _, asset := range assets {
		_ = table.Append([]string{
			cell(asset, "id"),
			cell(asset, "type"),
			cell(asset, "name"),
			cell(asset, "key"),
			cell(asset, "status"),
		})
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func renderIDs(w io.Writer, ids []string, format string) error {
	switch format {
	case constants.FormatJSON:
		return writeJSON(w, ids)
	case constants.FormatYAML:
		return writeYAML(w, ids)
	}

	for _, id := range ids {
		_, err := fmt.Fprintln(w, id)
		if err != nil {
			return fmt.Errorf("writing id: %w", err)
		}
	}

	return nil
}

// renderProperties writes a two-column Property/Value table in sorted key order.
func renderProperties(w io.Writer, properties map[string]string) error {
	keys := make([]string, 0, len(properties))
	for key := range properties {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.Header("Property", "Value")

	for _, key := range keys {
		_ = table.Append(key, properties[key])
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

// maskToken keeps the last few characters of a token visible.
func maskToken(token string) string {
	if token == "" {
		return ""
	}

	if len(token) <= visibleTokenChars {
		return constants.MaskedSecret
	}

	return constants.MaskedSecret + token[len(token)-visibleTokenChars:]
}
