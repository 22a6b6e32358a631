package messaging

import (
	"context"
	"encoding/json"
	"time"

	"example.com/fundwave/services/events/config"
	"example.com/fundwave/services/events/internal/events"
)

// StreamPublisher appends domain events to the distributed event stream
// so out-of-process consumers can observe them. Publishing is best-effort
// relative to the local pipeline; callers log and swallow failures.
type StreamPublisher interface {
	Publish(ctx context.Context, event *events.DomainEvent) error
	Close() error
}

// StreamRecord is the wire shape appended to the stream
type StreamRecord struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// streamPublisher publishes to a fixed Service Bus queue
type streamPublisher struct {
	client ServiceBusClient
}

// NewStreamPublisher creates a stream publisher for the configured stream
// queue. With no stream connection string the underlying client is
// disabled and publishing degrades to a logged no-op.
func NewStreamPublisher(cfg config.AzureConfig) (StreamPublisher, error) {
	client, err := NewServiceBusClient(cfg.StreamConnStr, cfg.StreamQueue, "event-stream")
	if err != nil {
		return nil, err
	}
	return &streamPublisher{client: client}, nil
}

// Publish appends one event to the stream
func (p *streamPublisher) Publish(ctx context.Context, event *events.DomainEvent) error {
	record := StreamRecord{
		ID:            event.ID,
		Type:          string(event.Type),
		Payload:       event.Payload,
		Timestamp:     event.Timestamp,
		Version:       event.Version,
		CorrelationID: event.CorrelationID,
	}
	return p.client.SendMessage(ctx, record)
}

// Close closes the underlying Service Bus client
func (p *streamPublisher) Close() error {
	return p.client.Close()
}
