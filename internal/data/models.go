// Package data provides the MongoDB models and stores for the
// conversation and message lifecycle engine.
package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Message kinds. System messages narrate membership events and are
// immutable once created.
const (
	KindText   = "text"
	KindImage  = "image"
	KindVideo  = "video"
	KindSystem = "system"
)

// Reaction kinds. At most one reaction per user per message.
const (
	ReactionHeart = "heart"
	ReactionLaugh = "laugh"
	ReactionWow   = "wow"
	ReactionSad   = "sad"
	ReactionAngry = "angry"
	ReactionLike  = "like"
)

// ValidReactionKind reports whether kind is one of the six reaction kinds.
func ValidReactionKind(kind string) bool {
	switch kind {
	case ReactionHeart, ReactionLaugh, ReactionWow, ReactionSad, ReactionAngry, ReactionLike:
		return true
	}
	return false
}

// MaxTextLength caps text message content.
const MaxTextLength = 2000

// EditWindow is how long after creation the sender may edit a text message.
const EditWindow = 15 * time.Minute

// User maps to the users collection.
type User struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	Email       string        `bson:"email"`
	Password    string        `bson:"password"`
	DisplayName string        `bson:"display_name"`
	Avatar      string        `bson:"avatar,omitempty"`
	CreatedAt   time.Time     `bson:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at"`
}

// Conversation maps to the conversations collection. Direct conversations
// have exactly two participants and carry a unique pair key; groups carry
// name, creator and admins.
type Conversation struct {
	ID           bson.ObjectID   `bson:"_id,omitempty"`
	IsGroup      bool            `bson:"is_group"`
	PairKey      string          `bson:"pair_key,omitempty"`
	Participants []bson.ObjectID `bson:"participants"`
	GroupName    string          `bson:"group_name,omitempty"`
	GroupImage   string          `bson:"group_image,omitempty"`
	CreatorID    bson.ObjectID   `bson:"creator_id,omitempty"`
	Admins       []bson.ObjectID `bson:"admins,omitempty"`
	MutedBy      []bson.ObjectID `bson:"muted_by,omitempty"`
	LastMessage  bson.ObjectID   `bson:"last_message_id,omitempty"`
	CreatedAt    time.Time       `bson:"created_at"`
	UpdatedAt    time.Time       `bson:"updated_at"`
}

// HasParticipant reports whether user is a participant.
func (c *Conversation) HasParticipant(user bson.ObjectID) bool {
	return containsID(c.Participants, user)
}

// HasAdmin reports whether user is an admin.
func (c *Conversation) HasAdmin(user bson.ObjectID) bool {
	return containsID(c.Admins, user)
}

// IsMutedBy reports whether user muted this conversation.
func (c *Conversation) IsMutedBy(user bson.ObjectID) bool {
	return containsID(c.MutedBy, user)
}

// Reaction is a single per-user reaction entry. Reactions live on the
// message document in a map keyed by user hex id, which makes the
// one-per-user invariant structural.
type Reaction struct {
	Kind string    `bson:"kind" json:"kind"`
	At   time.Time `bson:"at" json:"at"`
}

// Message maps to the messages collection. Body holds the codec output;
// Content carries the decoded plaintext and is never persisted.
type Message struct {
	ID             bson.ObjectID       `bson:"_id,omitempty"`
	ConversationID bson.ObjectID       `bson:"conversation_id"`
	SenderID       bson.ObjectID       `bson:"sender_id,omitempty"`
	Kind           string              `bson:"kind"`
	Body           []byte              `bson:"body"`
	ReadBy         []bson.ObjectID     `bson:"read_by"`
	ReplyTo        bson.ObjectID       `bson:"reply_to,omitempty"`
	Reactions      map[string]Reaction `bson:"reactions,omitempty"`
	CreatedAt      time.Time           `bson:"created_at"`
	EditedAt       *time.Time          `bson:"edited_at,omitempty"`

	Content string `bson:"-"`
}

// IsSystem reports whether the message is system-generated narration.
func (m *Message) IsSystem() bool { return m.Kind == KindSystem }

// ReadByUser reports whether user already appears in the read set.
func (m *Message) ReadByUser(user bson.ObjectID) bool {
	return containsID(m.ReadBy, user)
}

// ConversationPreview is the inbox view of one conversation: display
// metadata, the decoded last-message preview and the unread count for the
// requesting user.
type ConversationPreview struct {
	Conversation *Conversation
	LastMessage  *Message
	Preview      string
	Unread       int64
	Muted        bool
}

func containsID(ids []bson.ObjectID, id bson.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
