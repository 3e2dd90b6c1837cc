package events

import "log"

// Bus routes envelopes to live streams and, when configured, to Kafka
type Bus struct {
	Hub      *Hub
	Kafka    *KafkaPublisher
	Producer string
}

// NewBus creates a bus; kafka may be nil
func NewBus(hub *Hub, kafka *KafkaPublisher, producer string) *Bus {
	return &Bus{Hub: hub, Kafka: kafka, Producer: producer}
}

// PublishOrder emits an order event to the customer and every producer involved
func (b *Bus) PublishOrder(eventType string, p OrderPayload) {
	if b == nil {
		return
	}
	env, err := NewEnvelope(eventType, b.Producer, p.OrderID, p)
	if err != nil {
		log.Printf("[EVENTS] %v", err)
		return
	}

	recipients := append([]string{p.CustomerID}, p.ProducerIDs...)
	if b.Hub != nil {
		b.Hub.Publish(env, recipients...)
	}
	if b.Kafka != nil {
		b.Kafka.Publish(env)
	}
}

// PublishUser emits a user-scoped event such as a subscription change
func (b *Bus) PublishUser(eventType, userID string, payload any) {
	if b == nil {
		return
	}
	env, err := NewEnvelope(eventType, b.Producer, userID, payload)
	if err != nil {
		log.Printf("[EVENTS] %v", err)
		return
	}
	if b.Hub != nil {
		b.Hub.Publish(env, userID)
	}
	if b.Kafka != nil {
		b.Kafka.Publish(env)
	}
}
