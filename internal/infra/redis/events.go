package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/rescue/internal/core/domain"
)

// EventPublisher publishes recovery events on a pub/sub channel for dashboards.
type EventPublisher struct {
	client  *Client
	channel string
}

// NewEventPublisher creates a publisher on channel (default "<prefix>:events").
func NewEventPublisher(client *Client, channel string) *EventPublisher {
	if channel == "" {
		channel = client.prefix + ":events"
	}
	return &EventPublisher{client: client, channel: channel}
}

// Emit publishes the JSON-encoded event.
func (p *EventPublisher) Emit(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close is a no-op; the shared client is closed by its owner.
func (p *EventPublisher) Close() error { return nil }
