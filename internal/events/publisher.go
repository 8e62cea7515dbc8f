// ABOUTME: Optional Kafka event publisher for downstream portal resync
// ABOUTME: Emits blueprint publish and article change events; failures are logged, never fatal

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event is the JSON payload written to the events topic.
type Event struct {
	Kind      string `json:"kind"`   // "blueprint" or "article"
	Action    string `json:"action"` // "publish", "create", "delete"
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

// Publisher writes resync events to Kafka. A nil Publisher is valid and
// drops every event, so callers never need to branch on configuration.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewPublisher creates a publisher for the given broker and topic.
func NewPublisher(broker, topic string, logger *slog.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &Publisher{
		writer: writer,
		logger: logger.With("component", "events"),
	}
}

// Publish emits one event. Errors are logged and swallowed; event delivery
// must never fail an admin request.
func (p *Publisher) Publish(ctx context.Context, kind, action, id string) {
	if p == nil {
		return
	}

	event := Event{
		Kind:      kind,
		Action:    action,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(id),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("failed to publish event", "kind", kind, "action", action, "error", err)
		return
	}

	p.logger.Debug("published event", "kind", kind, "action", action, "id", id)
}

// Close releases the Kafka writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
