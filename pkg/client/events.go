package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"
)

// Event is one server-sent event from /api/events
type Event struct {
	ID   string
	Type string
	Data json.RawMessage
}

// EventStream listens on /api/events and invalidates the caches an event
// touches. Polling keeps running alongside it, so a dropped stream only
// costs freshness.
type EventStream struct {
	client     *Client
	queries    *QueryClient
	handler    func(Event)
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewEventStream creates a stream bound to qc. handler, if not nil, sees
// every event after the caches are invalidated.
func NewEventStream(c *Client, qc *QueryClient, handler func(Event)) *EventStream {
	return &EventStream{
		client:     c,
		queries:    qc,
		handler:    handler,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Run consumes the stream until ctx is done, reconnecting with backoff. It
// returns early on a 401 or 403 since reconnecting cannot succeed.
func (s *EventStream) Run(ctx context.Context) error {
	backoff := s.minBackoff
	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if IsUnauthorized(err) || StatusCode(err) == http.StatusForbidden {
			return err
		}
		if errors.Is(err, errStreamClosed) {
			backoff = s.minBackoff
		}
		log.Printf("[EVENTS] Stream dropped, reconnecting in %s: %v", backoff, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}

var errStreamClosed = errors.New("event stream closed by server")

func (s *EventStream) consume(ctx context.Context) error {
	resp, err := s.client.Stream(ctx, "/api/events")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var ev Event
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev.Type != "" || data.Len() > 0 {
				ev.Data = json.RawMessage(data.String())
				s.dispatch(ctx, ev)
			}
			ev = Event{}
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id:"):
			ev.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "event:"):
			ev.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errStreamClosed
}

func (s *EventStream) dispatch(ctx context.Context, ev Event) {
	var keys []string
	switch {
	case strings.HasPrefix(ev.Type, "order."):
		keys = []string{KeyOrders, KeyProducerOrders, KeyProducerStats}
	case strings.HasPrefix(ev.Type, "subscription."):
		keys = []string{KeySubscriptionStatus}
	}
	if len(keys) > 0 {
		if err := s.queries.Invalidate(ctx, keys...); err != nil && ctx.Err() == nil {
			log.Printf("[EVENTS] Refetch after %s failed: %v", ev.Type, err)
		}
	}
	if s.handler != nil {
		s.handler(ev)
	}
}
