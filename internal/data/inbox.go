package data

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Fixed preview placeholders for media kinds: the inbox never leaks raw
// media URLs.
const (
	PreviewPhoto = "📷 Photo"
	PreviewVideo = "🎥 Vidéo"
)

// PreviewText formats a message for the conversation list.
func PreviewText(msg *Message) string {
	if msg == nil {
		return ""
	}
	switch msg.Kind {
	case KindImage:
		return PreviewPhoto
	case KindVideo:
		return PreviewVideo
	default:
		return msg.Content
	}
}

// Inbox builds the conversation list for a user: conversations ordered by
// last activity, each with its decoded last-message preview, mute flag
// and unread count. Counts come straight from the message log in one
// aggregation, not from a counter table.
func (c *ConversationsStore) Inbox(ctx context.Context, user bson.ObjectID) ([]*ConversationPreview, error) {
	convos, err := c.ListForUser(ctx, user)
	if err != nil {
		return nil, err
	}

	convoIDs := make([]bson.ObjectID, 0, len(convos))
	lastIDs := make([]bson.ObjectID, 0, len(convos))
	for _, convo := range convos {
		convoIDs = append(convoIDs, convo.ID)
		if !convo.LastMessage.IsZero() {
			lastIDs = append(lastIDs, convo.LastMessage)
		}
	}

	unread, err := c.msgs.UnreadByConversation(ctx, user, convoIDs)
	if err != nil {
		return nil, err
	}
	lastMessages, err := c.msgs.GetManyByID(ctx, lastIDs)
	if err != nil {
		return nil, err
	}

	previews := make([]*ConversationPreview, 0, len(convos))
	for _, convo := range convos {
		var last *Message
		if !convo.LastMessage.IsZero() {
			last = lastMessages[convo.LastMessage.Hex()]
		}
		previews = append(previews, &ConversationPreview{
			Conversation: convo,
			LastMessage:  last,
			Preview:      PreviewText(last),
			Unread:       unread[convo.ID.Hex()],
			Muted:        convo.IsMutedBy(user),
		})
	}
	return previews, nil
}
