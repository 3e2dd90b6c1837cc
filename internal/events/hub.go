package events

import (
	"log"
	"sync"
)

const subscriberBuffer = 16

// Hub fans envelopes out to per-user subscribers. Slow subscribers lose
// events rather than blocking publishers; clients fall back to polling.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch chan Envelope
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers a stream for userID. The returned cancel func must be
// called exactly once; it closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan Envelope, func()) {
	s := &subscriber{ch: make(chan Envelope, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[userID]; ok {
				if _, ok := set[s]; ok {
					delete(set, s)
					close(s.ch)
				}
				if len(set) == 0 {
					delete(h.subs, userID)
				}
			}
		})
	}
}

// Publish delivers env to every subscriber of the given users
func (h *Hub) Publish(env Envelope, userIDs ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool, len(userIDs))
	for _, uid := range userIDs {
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		for s := range h.subs[uid] {
			select {
			case s.ch <- env:
			default:
				log.Printf("[EVENTS] Dropping %s for slow subscriber user_id=%s", env.EventType, uid)
			}
		}
	}
}

// Subscribers returns the number of open streams for userID
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close ends every stream
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for uid, set := range h.subs {
		for s := range set {
			close(s.ch)
		}
		delete(h.subs, uid)
	}
}
