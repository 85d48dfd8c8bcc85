package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goliatone/go-strm/core"
	"github.com/google/uuid"
)

const TopicDeliveryAttempt = "strm.delivery.attempt"

// DeliveryAttemptEvent is the JSON payload published for every send attempt.
type DeliveryAttemptEvent struct {
	ID         string    `json:"id"`
	DeliveryID string    `json:"delivery_id"`
	SchemaRef  string    `json:"schema_ref"`
	Attempt    int       `json:"attempt"`
	StatusCode int       `json:"status_code"`
	Refreshed  bool      `json:"refreshed"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// AttemptPublisher implements core.DeliveryRecorder on top of a Watermill
// publisher.
type AttemptPublisher struct {
	publisher message.Publisher
	topic     string
}

type Option func(*AttemptPublisher)

func WithTopic(topic string) Option {
	return func(p *AttemptPublisher) {
		if trimmed := strings.TrimSpace(topic); trimmed != "" {
			p.topic = trimmed
		}
	}
}

func NewAttemptPublisher(publisher message.Publisher, opts ...Option) (*AttemptPublisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("events: watermill publisher is required")
	}
	p := &AttemptPublisher{
		publisher: publisher,
		topic:     TopicDeliveryAttempt,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *AttemptPublisher) Topic() string {
	if p == nil {
		return ""
	}
	return p.topic
}

func (p *AttemptPublisher) RecordAttempt(ctx context.Context, attempt core.DeliveryAttempt) error {
	if p == nil || p.publisher == nil {
		return fmt.Errorf("events: attempt publisher is not configured")
	}
	event := DeliveryAttemptEvent{
		ID:         attempt.ID,
		DeliveryID: attempt.DeliveryID,
		SchemaRef:  attempt.SchemaRef,
		Attempt:    attempt.Attempt,
		StatusCode: attempt.StatusCode,
		Refreshed:  attempt.Refreshed,
		Error:      attempt.Error,
		DurationMS: attempt.DurationMS,
		CreatedAt:  attempt.CreatedAt.UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal delivery attempt: %w", err)
	}

	messageID := strings.TrimSpace(attempt.ID)
	if messageID == "" {
		messageID = uuid.NewString()
	}
	msg := message.NewMessage(messageID, payload)
	if ctx != nil {
		msg.SetContext(ctx)
	}
	msg.Metadata.Set("delivery_id", attempt.DeliveryID)
	msg.Metadata.Set("schema_ref", attempt.SchemaRef)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("events: publish delivery attempt: %w", err)
	}
	return nil
}

var _ core.DeliveryRecorder = (*AttemptPublisher)(nil)
