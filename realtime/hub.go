package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"cyberquest/core"
)

type subscriber struct {
	ch      chan core.Event
	session core.SessionID
}

// Hub is a simple pub/sub for broadcasting events to channels. Slow
// subscribers miss events rather than blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

func NewHub() *Hub { return &Hub{subs: map[int]subscriber{}} }

// Subscribe returns a channel receiving every event.
func (h *Hub) Subscribe(buffer int) (int, <-chan core.Event) {
	return h.SubscribeSession(buffer, "")
}

// SubscribeSession returns a channel receiving only events of one session.
// An empty session id receives everything.
func (h *Hub) SubscribeSession(buffer int, session core.SessionID) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.Event, buffer)
	h.subs[id] = subscriber{ch: ch, session: session}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast has the signature of an event bus handler.
func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	// sends are non-blocking, so holding the read lock keeps Unsubscribe from
	// closing a channel mid-send
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.session != "" && s.session != ev.SessionID {
			continue
		}
		select {
		case s.ch <- ev:
		default: /* drop if full */
		}
	}
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
