package eventbus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmptyPayload is returned when decoding an event without a payload.
	ErrEmptyPayload = errors.New("event has no payload")
	// ErrMalformedEnvelope wraps bodies that are not a JSON envelope.
	ErrMalformedEnvelope = errors.New("malformed event envelope")
)

// ConsumedEvent is the envelope every event travels in, on the in-process
// bus, on RabbitMQ and in the outbox table.
type ConsumedEvent struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	RoutingKey    string          `json:"routing_key"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      EventMetadata   `json:"metadata,omitempty"`
}

// EventMetadata ties an event to the command that caused it.
type EventMetadata struct {
	UserID        uuid.UUID `json:"user_id,omitempty"`
	CorrelationID uuid.UUID `json:"correlation_id,omitempty"`
	CausationID   uuid.UUID `json:"causation_id,omitempty"`
}

// Decode unmarshals the event payload into v. A missing or null payload
// is ErrEmptyPayload.
func (e *ConsumedEvent) Decode(v any) error {
	raw := bytes.TrimSpace(e.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ErrEmptyPayload
	}
	return json.Unmarshal(e.Payload, v)
}

// DecodeEnvelope parses a message body. Producers outside the engine may
// leave routing_key empty; the key the message arrived under is used then.
func DecodeEnvelope(body []byte, routingKey string) (*ConsumedEvent, error) {
	event := &ConsumedEvent{}
	if err := json.Unmarshal(body, event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if event.RoutingKey == "" {
		event.RoutingKey = routingKey
	}
	return event, nil
}
