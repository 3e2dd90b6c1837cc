package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes envelopes to a topic from a single background loop
type KafkaPublisher struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	done    chan struct{}
	closing sync.Once
}

// NewKafkaPublisher creates a publisher; call Start before Publish
func NewKafkaPublisher(brokers []string, topic string, buf int) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

// Start runs the write loop until Close drains the inbox
func (p *KafkaPublisher) Start() {
	go func() {
		defer close(p.done)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				log.Printf("[EVENTS] Kafka write failed key=%s: %v", m.Key, err)
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			log.Printf("[EVENTS] Kafka writer close: %v", err)
		}
	}()
}

// Publish enqueues env keyed by its correlation id so one order's events stay ordered
func (p *KafkaPublisher) Publish(env Envelope) {
	value, err := json.Marshal(env)
	if err != nil {
		log.Printf("[EVENTS] Encode %s: %v", env.EventType, err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(env.CorrelationID),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(env.EventType)},
			{Key: "x-event-version", Value: []byte("1")},
		},
	}
	select {
	case p.inbox <- msg:
	default:
		log.Printf("[EVENTS] Kafka inbox full, dropping %s", env.EventType)
	}
}

// Close flushes queued messages and waits for the writer to close
func (p *KafkaPublisher) Close() {
	p.closing.Do(func() { close(p.inbox) })
	<-p.done
}
