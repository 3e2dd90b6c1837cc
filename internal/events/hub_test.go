package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToRecipientsOnly(t *testing.T) {
	hub := NewHub()
	customer, cancelC := hub.Subscribe("customer-1")
	defer cancelC()
	producer, cancelP := hub.Subscribe("producer-1")
	defer cancelP()
	other, cancelO := hub.Subscribe("someone-else")
	defer cancelO()

	bus := NewBus(hub, nil, "test")
	bus.PublishOrder(EventOrderValidationUpdated, OrderPayload{
		OrderID:          "o1",
		CustomerID:       "customer-1",
		ProducerIDs:      []string{"producer-1", "producer-1"},
		ValidationStatus: "in_progress",
	})

	env := <-customer
	assert.Equal(t, EventOrderValidationUpdated, env.EventType)
	assert.Equal(t, "o1", env.CorrelationID)

	env = <-producer
	p, err := UnwrapPayload[OrderPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", p.ValidationStatus)

	assert.Empty(t, producer, "duplicate recipient must get one copy")
	assert.Empty(t, other)
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("u")
	assert.Equal(t, 1, hub.Subscribers("u"))

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers("u"))
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("u")
	defer cancel()

	env, err := NewEnvelope(EventOrderCreated, "test", "o1", OrderPayload{OrderID: "o1"})
	require.NoError(t, err)
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(env, "u")
	}

	assert.Len(t, ch, subscriberBuffer)
}

func TestHubCloseEndsStreams(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("u")
	hub.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := hub.Subscribe("u")
	_, ok = <-late
	assert.False(t, ok)
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() {
		bus.PublishOrder(EventOrderCreated, OrderPayload{OrderID: "o"})
		bus.PublishUser(EventSubscriptionChanged, "u", map[string]bool{"active": true})
	})
}
