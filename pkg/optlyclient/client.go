// Package optlyclient provides the main entry point for creating Optimizely API clients
package optlyclient

import (
	"fmt"
	"strings"

	"github.com/fivetwenty-io/optly/internal/client"
	"github.com/fivetwenty-io/optly/internal/constants"
	"github.com/fivetwenty-io/optly/pkg/optly"
)

// New creates a new Optimizely client. Empty endpoints fall back to the public
// Optimizely hosts; the caller's config is not modified.
func New(config *optly.Config) (optly.Client, error) {
	if config == nil {
		return nil, optly.ErrConfigRequired
	}

	normalized := *config
	normalized.APIEndpoint = normalizeEndpoint(config.APIEndpoint, constants.DefaultAPIEndpoint)
	normalized.EventsEndpoint = normalizeEndpoint(config.EventsEndpoint, constants.DefaultEventsEndpoint)

	cli, err := client.New(&normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return cli, nil
}

// normalizeEndpoint applies the default, an https scheme and drops a trailing slash.
func normalizeEndpoint(endpoint, fallback string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fallback
	}

	endpoint = strings.TrimSuffix(endpoint, "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	return endpoint
}

// NewWithToken creates a client for one project using a personal access token.
func NewWithToken(token string, projectID int64) (optly.Client, error) {
	return New(&optly.Config{
		AccessToken: token,
		ProjectID:   projectID,
	})
}

// NewForEvents creates a client that only builds and sends event payloads.
func NewForEvents(accountID int64) (optly.Client, error) {
	return New(&optly.Config{
		AccountID: accountID,
	})
}
