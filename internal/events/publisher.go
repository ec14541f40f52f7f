// Package events carries document lifecycle events from producers to the
// probe engine over a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/probeline/probeline/internal/document"
	"github.com/probeline/probeline/internal/plugin"
)

const (
	// StreamKey is the Redis stream for lifecycle events.
	StreamKey = "stream:probe_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:probe_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// EventPayload is the wire format of a lifecycle event on the stream and on
// the HTTP ingestion endpoint.
type EventPayload struct {
	Event      string          `json:"event"`
	Index      string          `json:"index,omitempty"`
	Collection string          `json:"collection,omitempty"`
	ID         string          `json:"id,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	EmittedAt  int64           `json:"t,omitempty"` // Unix milliseconds
}

// ToEvent decodes the payload into an engine event. A missing body becomes
// an empty document body.
func (p EventPayload) ToEvent() (plugin.Event, error) {
	body := map[string]any{}
	if len(p.Body) > 0 && string(p.Body) != "null" {
		if err := json.Unmarshal(p.Body, &body); err != nil {
			return plugin.Event{}, fmt.Errorf("decode body: %w", err)
		}
	}
	return plugin.Event{
		Name:       p.Event,
		Index:      p.Index,
		Collection: p.Collection,
		Document:   document.Document{ID: p.ID, Body: body},
	}, nil
}

// Publisher enqueues lifecycle events to the Redis stream.
type Publisher struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewPublisher creates a new event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		redis:  client,
		logger: logger.With("component", "events.publisher"),
	}
}

// Publish validates and adds an event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event EventPayload) (string, error) {
	if event.EmittedAt == 0 {
		event.EmittedAt = time.Now().UnixMilli()
	}
	if err := ValidateEventPayload(event); err != nil {
		return "", err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned.
func (p *Publisher) PublishAsync(event EventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish event",
				"hook", event.Event,
				"error", err,
			)
			return
		}

		p.logger.Debug("event published",
			"hook", event.Event,
			"stream_id", streamID,
		)
	}()
}
