package events

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type stubWriter struct {
	messages []kafka.Message
}

func (s *stubWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	s.messages = append(s.messages, msgs...)
	return nil
}

func TestPublishTransition(t *testing.T) {
	writer := &stubWriter{}
	publisher := &Publisher{writer: writer}

	occurred := time.Date(2025, time.July, 15, 9, 0, 0, 0, time.UTC)
	err := publisher.PublishTransition(context.Background(), TransitionEvent{
		ActivityID: "act-1",
		Path:       "activities/act-1.json",
		Action:     "start",
		FromStatus: "Pending",
		ToStatus:   "In Progress",
		Actor:      "vendor@example.com",
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	require.Equal(t, []byte("act-1"), msg.Key)
	require.Equal(t, occurred, msg.Time)
	require.JSONEq(t, `{
		"activity_id": "act-1",
		"path": "activities/act-1.json",
		"action": "start",
		"from_status": "Pending",
		"to_status": "In Progress",
		"actor": "vendor@example.com",
		"occurred_at": "2025-07-15T09:00:00Z"
	}`, string(msg.Value))

	var eventType string
	for _, header := range msg.Headers {
		if header.Key == "event_type" {
			eventType = string(header.Value)
		}
	}
	require.Equal(t, EventTypeTransitioned, eventType)
}

func TestNilPublisherIsDisabled(t *testing.T) {
	var publisher *Publisher
	require.NoError(t, publisher.PublishTransition(context.Background(), TransitionEvent{ActivityID: "x"}))
	require.NoError(t, publisher.Close())
}
