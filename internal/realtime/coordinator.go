package realtime

import (
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"

	"parley/internal/data"
)

// Transport is the external publish channel the coordinator pushes
// through. The in-process Hub implements it; a production deployment can
// substitute a broker-backed one.
type Transport interface {
	Broadcast(participantIDs []string, event Event) error
}

// Coordinator emits an event to a conversation's current participants
// after each durable mutation. Emission is fire-and-forget: it runs on
// its own goroutine, is never awaited by the request path, and a delivery
// failure is logged, never propagated — the durable write already
// succeeded and must not be rolled back.
type Coordinator struct {
	transport Transport
	log       *logrus.Logger
}

// NewCoordinator wires a coordinator to a transport.
func NewCoordinator(transport Transport, log *logrus.Logger) *Coordinator {
	return &Coordinator{transport: transport, log: log}
}

// MessagePayload is the wire shape of a message inside an event.
type MessagePayload struct {
	ID        string                   `json:"id"`
	SenderID  string                   `json:"senderId,omitempty"`
	Kind      string                   `json:"kind"`
	Content   string                   `json:"content"`
	ReplyTo   string                   `json:"replyTo,omitempty"`
	CreatedAt int64                    `json:"createdAt"`
	EditedAt  int64                    `json:"editedAt,omitempty"`
	Reactions map[string]data.Reaction `json:"reactions,omitempty"`
}

func messagePayload(msg *data.Message) MessagePayload {
	p := MessagePayload{
		ID:        msg.ID.Hex(),
		Kind:      msg.Kind,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.UnixMilli(),
		Reactions: msg.Reactions,
	}
	if !msg.SenderID.IsZero() {
		p.SenderID = msg.SenderID.Hex()
	}
	if !msg.ReplyTo.IsZero() {
		p.ReplyTo = msg.ReplyTo.Hex()
	}
	if msg.EditedAt != nil {
		p.EditedAt = msg.EditedAt.UnixMilli()
	}
	return p
}

// MessageCreated notifies participants of a newly persisted message.
func (c *Coordinator) MessageCreated(convo *data.Conversation, msg *data.Message) {
	c.emit(convo, NewEvent(EventMessageCreated, convo.ID.Hex(), messagePayload(msg)))
}

// MessageEdited notifies participants of an edited message.
func (c *Coordinator) MessageEdited(convo *data.Conversation, msg *data.Message) {
	c.emit(convo, NewEvent(EventMessageEdited, convo.ID.Hex(), messagePayload(msg)))
}

// MessageDeleted notifies participants that a message is gone.
func (c *Coordinator) MessageDeleted(convo *data.Conversation, msgID bson.ObjectID) {
	c.emit(convo, NewEvent(EventMessageDeleted, convo.ID.Hex(), map[string]string{"messageId": msgID.Hex()}))
}

// ReactionChanged pushes the message's full reaction set after a toggle.
func (c *Coordinator) ReactionChanged(convo *data.Conversation, msgID bson.ObjectID, reactions map[string]data.Reaction) {
	c.emit(convo, NewEvent(EventReactionChanged, convo.ID.Hex(), map[string]interface{}{
		"messageId": msgID.Hex(),
		"reactions": reactions,
	}))
}

// Typing pushes an ephemeral typing signal; nothing is persisted and the
// receiving client expires it after TypingTTL.
func (c *Coordinator) Typing(convo *data.Conversation, userID bson.ObjectID) {
	c.emit(convo, NewEvent(EventTyping, convo.ID.Hex(), map[string]interface{}{
		"userId":    userID.Hex(),
		"expiresMs": TypingTTL.Milliseconds(),
	}))
}

// ConversationUpdated notifies participants of membership, mute or
// display-metadata changes.
func (c *Coordinator) ConversationUpdated(convo *data.Conversation) {
	c.emit(convo, NewEvent(EventConversationUpdated, convo.ID.Hex(), map[string]interface{}{
		"isGroup":      convo.IsGroup,
		"groupName":    convo.GroupName,
		"participants": hexIDs(convo.Participants),
		"admins":       hexIDs(convo.Admins),
	}))
}

func (c *Coordinator) emit(convo *data.Conversation, event Event) {
	participants := hexIDs(convo.Participants)
	go func() {
		if err := c.transport.Broadcast(participants, event); err != nil {
			c.log.WithFields(logrus.Fields{
				"event":        event.Kind,
				"conversation": event.ConversationID,
			}).WithError(err).Debug("realtime delivery incomplete")
		}
	}()
}

func hexIDs(ids []bson.ObjectID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}
