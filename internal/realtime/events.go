// Package realtime fans durable-write notifications out to connected
// participants. It is never the system of record: every event is emitted
// after the corresponding store write has committed, and a failed
// delivery is logged and forgotten.
package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds pushed to connected clients.
const (
	EventMessageCreated      = "message.created"
	EventMessageEdited       = "message.edited"
	EventMessageDeleted      = "message.deleted"
	EventReactionChanged     = "reaction.changed"
	EventTyping              = "typing"
	EventConversationUpdated = "conversation.updated"
)

// TypingTTL is how long a client should display a typing indicator that
// is not refreshed. Typing events are never persisted.
const TypingTTL = 3 * time.Second

// Event is one realtime notification scoped to a conversation.
type Event struct {
	ID             string      `json:"id"`
	Kind           string      `json:"kind"`
	ConversationID string      `json:"conversationId"`
	Payload        interface{} `json:"payload,omitempty"`
	At             time.Time   `json:"at"`
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(kind, conversationID string, payload interface{}) Event {
	return Event{
		ID:             uuid.NewString(),
		Kind:           kind,
		ConversationID: conversationID,
		Payload:        payload,
		At:             time.Now(),
	}
}
