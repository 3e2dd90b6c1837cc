package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateFixture(t *testing.T, email string, st SubscriptionStatus) (*SubscriptionGate, *MemoryNavigator, *fakeBackend) {
	t.Helper()
	f := newFakeBackend(t)
	f.setSubscription(st)
	c, tokens := newTestClient(f, "")
	session := NewSessionStore(c, tokens, nil)
	_, err := session.Login(context.Background(), email, "password")
	require.NoError(t, err)

	qc := NewQueryClient()
	t.Cleanup(qc.Close)
	nav := &MemoryNavigator{}
	nav.Navigate("/producer-dashboard")
	gate := NewSubscriptionGate(c, qc, session, nav)
	gate.settle = 20 * time.Millisecond
	t.Cleanup(gate.Stop)
	return gate, nav, f
}

func TestSubscriptionGateRedirectsInactiveProducer(t *testing.T) {
	gate, nav, _ := newGateFixture(t, "producer@demo.com", SubscriptionStatus{HasActiveSubscription: false, Message: "No active subscription found"})

	st, err := gate.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.HasActiveSubscription)
	assert.False(t, gate.Allowed())

	// nothing happens before the settle delay
	assert.Equal(t, "/producer-dashboard", nav.Path())
	require.Eventually(t, func() bool { return nav.Path() == SubscriptionPath }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, gate.Redirects())
}

func TestSubscriptionGateLetsActiveProducerThrough(t *testing.T) {
	gate, nav, _ := newGateFixture(t, "producer@demo.com", SubscriptionStatus{HasActiveSubscription: true, Status: "active", PlanID: "basic"})

	_, err := gate.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, gate.Allowed())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, "/producer-dashboard", nav.Path())
	assert.Zero(t, gate.Redirects())
}

func TestSubscriptionGateSkipsCustomers(t *testing.T) {
	gate, nav, f := newGateFixture(t, "customer@demo.com", SubscriptionStatus{})

	_, err := gate.Status(context.Background())
	assert.ErrorIs(t, err, ErrQueryDisabled)
	assert.True(t, gate.Allowed())
	assert.Zero(t, f.hit("GET /api/producer/subscription-status"))
	assert.Equal(t, "/producer-dashboard", nav.Path())
}

func TestSubscriptionGateStaysOnPurchasePage(t *testing.T) {
	gate, nav, _ := newGateFixture(t, "producer@demo.com", SubscriptionStatus{})
	nav.Navigate(SubscriptionPath)

	_, err := gate.Status(context.Background())
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, gate.Redirects())
	assert.Equal(t, []string{"/producer-dashboard", SubscriptionPath}, nav.History())
}
