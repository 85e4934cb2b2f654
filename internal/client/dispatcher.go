package client

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/optly/internal/http"
)

// EventDispatcher implements optly.EventDispatcher against the Event API.
type EventDispatcher struct {
	httpClient *http.Client
}

// NewEventDispatcher creates a dispatcher. httpClient must be bound to the
// full Event API URL and carry no credentials.
func NewEventDispatcher(httpClient *http.Client) *EventDispatcher {
	return &EventDispatcher{
		httpClient: httpClient,
	}
}

// DispatchEvents implements optly.EventDispatcher.DispatchEvents. Rejections
// by the Event API are reported through the status code; only transport
// failures return an error.
func (d *EventDispatcher) DispatchEvents(ctx context.Context, payload []byte) (int, error) {
	resp, err := d.httpClient.Post(ctx, "", payload)
	if err != nil && resp == nil {
		return 0, fmt.Errorf("posting events: %w", err)
	}

	return resp.StatusCode, nil
}
