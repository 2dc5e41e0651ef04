package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"parley/internal/metrics"
	"parley/internal/realtime"
)

// sseBufferSize bounds the per-connection event backlog. A client that
// cannot drain this many events is considered dead and dropped.
const sseBufferSize = 64

var errSubscriberSaturated = errors.New("subscriber buffer full")

// sseSubscriber adapts a Server-Sent Events connection to the hub. Send
// never blocks: a slow reader fails fast instead of stalling the
// broadcast goroutine, and the hub drops it.
type sseSubscriber struct {
	events chan realtime.Event
}

func newSSESubscriber() *sseSubscriber {
	return &sseSubscriber{events: make(chan realtime.Event, sseBufferSize)}
}

func (s *sseSubscriber) Send(event realtime.Event) error {
	select {
	case s.events <- event:
		return nil
	default:
		return errSubscriberSaturated
	}
}

// handleEvents streams realtime events to the authenticated user over
// SSE. The connection stays open until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	_, claims, err := s.actorID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := newSSESubscriber()
	connID := s.hub.Register(claims.UserID, sub)
	defer s.hub.Unregister(claims.UserID, connID)

	s.log.WithField("user_id", claims.UserID).Debug("sse stream opened")

	// Periodic comments keep intermediaries from closing an idle stream.
	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.log.WithField("user_id", claims.UserID).Debug("sse stream closed")
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event := <-sub.events:
			payload, err := json.Marshal(event)
			if err != nil {
				s.log.WithError(err).Error("encode realtime event")
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Kind, payload)
			flusher.Flush()
			metrics.RealtimeEvents.WithLabelValues(event.Kind).Inc()
		}
	}
}
