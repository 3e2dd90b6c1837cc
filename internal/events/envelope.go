package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated           = "order.created"
	EventOrderValidationUpdated = "order.validation_updated"
	EventOrderCancelled         = "order.cancelled"
	EventSubscriptionChanged    = "subscription.changed"
)

// Envelope wraps every event sent to streams and to Kafka
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderPayload describes an order change
type OrderPayload struct {
	OrderID          string   `json:"order_id"`
	CustomerID       string   `json:"customer_id"`
	ProducerIDs      []string `json:"producer_ids,omitempty"`
	ValidationStatus string   `json:"validation_status,omitempty"`
	Status           string   `json:"status,omitempty"`
}

// NewEnvelope builds a v1 envelope around payload
func NewEnvelope(eventType, producer, correlationID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

// UnwrapPayload decodes the payload of an envelope
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
