// Package events publishes activity lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventTypeTransitioned marks a successful status transition.
const EventTypeTransitioned = "activity.transitioned"

// TransitionEvent describes one applied transition for downstream consumers.
type TransitionEvent struct {
	ActivityID string    `json:"activity_id"`
	Path       string    `json:"path"`
	Action     string    `json:"action"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
}

// Publisher emits transition events. A nil Publisher is a disabled feed:
// every method is a no-op, so callers need no broker to run.
type Publisher struct {
	writer messageWriter
}

// NewPublisher creates a Publisher writing to the given topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		},
	}
}

// PublishTransition emits one event keyed by activity ID.
func (p *Publisher) PublishTransition(ctx context.Context, ev TransitionEvent) error {
	if p == nil {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ActivityID),
		Value: payload,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeTransitioned)},
			{Key: "actor", Value: []byte(ev.Actor)},
		},
	})
}

// Close releases the underlying writer.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if closer, ok := p.writer.(*kafka.Writer); ok {
		return closer.Close()
	}
	return nil
}
