package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/nyambika/marketplace/internal/events"
	"github.com/nyambika/marketplace/internal/middleware"
)

const sseHeartbeat = 25 * time.Second

// EventsHandler handles GET /api/events, a server-sent event stream of the
// caller's order and subscription changes
func (a *App) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		middleware.WriteMessage(w, http.StatusServiceUnavailable, "Event stream unavailable")
		return
	}
	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut long-lived streams
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Printf("[EVENTS] Could not clear write deadline: %v", err)
	}

	actor := actorFrom(r)
	ch, cancel := a.hub.Subscribe(actor.UserID)
	defer cancel()

	ctx := r.Context()
	a.metrics.EventSubscribers.Add(ctx, 1, metric.WithAttributes(a.metrics.WithServiceName(nil)...))
	defer a.metrics.EventSubscribers.Add(ctx, -1, metric.WithAttributes(a.metrics.WithServiceName(nil)...))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		log.Printf("[EVENTS] Streaming unsupported: %v", err)
		return
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
		case env, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, env); err != nil {
				log.Printf("[EVENTS] Write to user_id=%s failed: %v", actor.UserID, err)
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", env.EventID, env.EventType, data)
	return err
}
