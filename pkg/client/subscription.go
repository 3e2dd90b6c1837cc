package client

import (
	"context"
	"log"
	"sync"
	"time"
)

// KeySubscriptionStatus is the subscription status cache key
const KeySubscriptionStatus = "producer-subscription-status"

// Subscription gate settings
const (
	SubscriptionStaleTime   = 60 * time.Second
	SubscriptionSettleDelay = 500 * time.Millisecond
	SubscriptionPath        = "/producer-subscription"
)

// SubscriptionGate sends producers without an active subscription to the
// subscription purchase route
type SubscriptionGate struct {
	query   *Query[SubscriptionStatus]
	session *SessionStore
	nav     Navigator
	settle  time.Duration

	mu        sync.Mutex
	timer     *time.Timer
	redirects int
}

// NewSubscriptionGate registers the status query with qc. The query is only
// enabled for producer sessions.
func NewSubscriptionGate(c *Client, qc *QueryClient, session *SessionStore, nav Navigator) *SubscriptionGate {
	g := &SubscriptionGate{session: session, nav: nav, settle: SubscriptionSettleDelay}
	g.query = NewQuery(qc, KeySubscriptionStatus, func(ctx context.Context) (SubscriptionStatus, error) {
		var st SubscriptionStatus
		err := c.Get(ctx, "/api/producer/subscription-status", &st)
		return st, err
	}, QueryOptions{
		StaleTime:       SubscriptionStaleTime,
		RefetchInterval: SubscriptionStaleTime,
		Retry:           1,
		Enabled:         g.isProducer,
	})
	g.query.Subscribe(func(st SubscriptionStatus, err error) {
		if err == nil && !st.HasActiveSubscription {
			g.schedule()
		}
	})
	return g
}

func (g *SubscriptionGate) isProducer() bool {
	return g.session != nil && g.session.HasRole(RoleProducer)
}

// Status returns the cached subscription status, fetching when stale
func (g *SubscriptionGate) Status(ctx context.Context) (SubscriptionStatus, error) {
	return g.query.Get(ctx)
}

// Allowed reports whether the session may use producer features: non
// producers are not gated, producers need a loaded active subscription
func (g *SubscriptionGate) Allowed() bool {
	if !g.isProducer() {
		return true
	}
	st, ok := g.query.Peek()
	return ok && st.HasActiveSubscription
}

// schedule navigates after the settle delay unless a redirect is already
// pending
func (g *SubscriptionGate) schedule() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		return
	}
	g.timer = time.AfterFunc(g.settle, g.fire)
}

func (g *SubscriptionGate) fire() {
	g.mu.Lock()
	g.timer = nil
	g.mu.Unlock()

	// The session may have changed while settling
	if !g.isProducer() {
		return
	}
	st, ok := g.query.Peek()
	if !ok || st.HasActiveSubscription {
		return
	}
	if g.nav.Path() == SubscriptionPath {
		return
	}
	log.Printf("[SUBSCRIPTION] No active subscription, redirecting to %s", SubscriptionPath)
	g.mu.Lock()
	g.redirects++
	g.mu.Unlock()
	g.nav.Navigate(SubscriptionPath)
}

// Redirects counts navigations made by the gate
func (g *SubscriptionGate) Redirects() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.redirects
}

// Query exposes the underlying query
func (g *SubscriptionGate) Query() *Query[SubscriptionStatus] {
	return g.query
}

// Stop cancels a pending redirect
func (g *SubscriptionGate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
