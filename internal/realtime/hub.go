package realtime

import (
	"fmt"
	"sync"
)

// Subscriber is the minimal interface the hub needs from a connected
// client: the ability to receive events.
type Subscriber interface {
	Send(Event) error
}

// Hub is the in-process implementation of the realtime transport. It maps
// user ids to their active subscriptions so a conversation-scoped event
// can be pushed to every currently-connected participant.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]Subscriber
	nextID int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int64]Subscriber)}
}

// Register adds a subscription for the given user and returns the
// connection id used to unregister it when the connection closes.
func (h *Hub) Register(userID string, s Subscriber) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[userID]; !ok {
		h.subs[userID] = make(map[int64]Subscriber)
	}
	h.nextID++
	id := h.nextID
	h.subs[userID][id] = s
	return id
}

// Unregister removes a previously-registered subscription.
func (h *Hub) Unregister(userID string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.subs[userID]; ok {
		delete(conns, id)
		if len(conns) == 0 {
			delete(h.subs, userID)
		}
	}
}

// Connected reports whether the user has at least one live subscription.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID]) > 0
}

// Broadcast delivers the event to every connected subscription of every
// listed participant. Delivery is best-effort: each failing subscription
// is unregistered so broken connections don't linger, and the first error
// is returned for logging.
func (h *Hub) Broadcast(participantIDs []string, event Event) error {
	type target struct {
		userID string
		id     int64
		sub    Subscriber
	}

	h.mu.RLock()
	var targets []target
	for _, userID := range participantIDs {
		for id, sub := range h.subs[userID] {
			targets = append(targets, target{userID: userID, id: id, sub: sub})
		}
	}
	h.mu.RUnlock()

	var firstErr error
	for _, tg := range targets {
		if err := tg.sub.Send(event); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("deliver to %s: %w", tg.userID, err)
			}
			h.Unregister(tg.userID, tg.id)
		}
	}
	return firstErr
}
