package data

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// BodyCodec is the at-rest protection applied to message bodies.
type BodyCodec interface {
	Encode(plaintext string) ([]byte, error)
	Decode(opaque []byte) (string, error)
}

// Uploader is the external media collaborator: it stores a raw payload
// and returns the URL that becomes the message content.
type Uploader interface {
	Upload(ctx context.Context, payload []byte, kind string) (string, error)
}

// Deduper remembers an id under a key for a window. Remember returns the
// previously stored id when the key was already present.
type Deduper interface {
	Remember(ctx context.Context, key, id string, ttl time.Duration) (existing string, duplicate bool, err error)
}

// Paging bounds for List.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// sendDedupeWindow is how long a clientMessageId suppresses duplicates.
const sendDedupeWindow = 10 * time.Minute

// MessagesStore provides the append-only per-conversation message log:
// send, page-and-mark-read, edit/delete windows, reactions and unread
// accounting. It owns the conversation last-message pointer updates that
// follow every durable message write.
type MessagesStore struct {
	coll   *mongo.Collection
	convos *mongo.Collection
	codec  BodyCodec
	media  Uploader
	dedupe Deduper // nil disables send idempotency
}

// NewMessagesStore returns a MessagesStore over the messages collection.
// convos is needed for last-message pointer maintenance and unread scans.
func NewMessagesStore(coll, convos *mongo.Collection, codec BodyCodec, media Uploader, dedupe Deduper) *MessagesStore {
	return &MessagesStore{coll: coll, convos: convos, codec: codec, media: media, dedupe: dedupe}
}

// SendInput carries one send request.
type SendInput struct {
	Kind            string
	Content         string // prose for text, raw payload for media
	ReplyTo         bson.ObjectID
	ClientMessageID string // optional idempotency token
}

// Send validates, uploads media if needed, encodes and persists a message,
// then moves the conversation's last-message pointer. The message is born
// read by its sender.
func (m *MessagesStore) Send(ctx context.Context, convo *Conversation, sender bson.ObjectID, in SendInput) (*Message, error) {
	if !convo.HasParticipant(sender) {
		return nil, NewError(KindForbidden, "sender is not a participant of this conversation")
	}

	content := in.Content
	switch in.Kind {
	case KindText:
		if utf8.RuneCountInString(content) > MaxTextLength {
			return nil, NewError(KindInvalidInput, "message exceeds the 2000 character limit")
		}
		if content == "" {
			return nil, NewError(KindInvalidInput, "message content is required")
		}
	case KindImage, KindVideo:
		if len(content) == 0 {
			return nil, NewError(KindInvalidInput, "media payload is required")
		}
		if m.media == nil {
			return nil, NewError(KindUploadFailed, "no media uploader configured")
		}
		url, err := m.media.Upload(ctx, []byte(content), in.Kind)
		if err != nil {
			return nil, WrapError(KindUploadFailed, "media upload failed", err)
		}
		content = url
	default:
		// KindSystem is reserved for AppendSystem.
		return nil, NewError(KindInvalidInput, "unknown message kind")
	}

	if !in.ReplyTo.IsZero() {
		// The reply target must live in the same conversation.
		count, err := m.coll.CountDocuments(ctx, bson.M{"_id": in.ReplyTo, "conversation_id": convo.ID})
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, NewError(KindNotFound, "reply target not found in this conversation")
		}
	}

	dedupeKey := ""
	if m.dedupe != nil && in.ClientMessageID != "" {
		dedupeKey = "send:" + convo.ID.Hex() + ":" + sender.Hex() + ":" + in.ClientMessageID
	}

	body, err := m.codec.Encode(content)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ConversationID: convo.ID,
		SenderID:       sender,
		Kind:           in.Kind,
		Body:           body,
		ReadBy:         []bson.ObjectID{sender},
		ReplyTo:        in.ReplyTo,
		CreatedAt:      time.Now(),
	}

	// Idempotent send: the first writer under a clientMessageId wins and
	// later retries get the original message back.
	if dedupeKey != "" {
		id := bson.NewObjectID()
		existing, duplicate, err := m.dedupe.Remember(ctx, dedupeKey, id.Hex(), sendDedupeWindow)
		if err != nil {
			// The send still proceeds, just without retry suppression.
			logrus.WithError(err).Warn("idempotency store unavailable, sending without dedupe")
		}
		if err == nil && duplicate {
			prevID, perr := bson.ObjectIDFromHex(existing)
			if perr == nil {
				if prev, gerr := m.GetByID(ctx, convo.ID, prevID); gerr == nil {
					return prev, nil
				}
			}
			// The original vanished (deleted); fall through and persist anew.
		}
		msg.ID = id
	}

	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = result.InsertedID.(bson.ObjectID)
	msg.Content = content

	if err := m.setLastMessage(ctx, convo.ID, msg.ID); err != nil {
		return nil, err
	}
	return msg, nil
}

// AppendSystem persists an immutable system narration message and makes it
// the conversation's last message. System messages are born read by every
// current participant so membership narration never counts as unread.
func (m *MessagesStore) AppendSystem(ctx context.Context, convo *Conversation, text string) (*Message, error) {
	body, err := m.codec.Encode(text)
	if err != nil {
		return nil, err
	}

	readBy := make([]bson.ObjectID, len(convo.Participants))
	copy(readBy, convo.Participants)

	msg := &Message{
		ConversationID: convo.ID,
		Kind:           KindSystem,
		Body:           body,
		ReadBy:         readBy,
		CreatedAt:      time.Now(),
	}

	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = result.InsertedID.(bson.ObjectID)
	msg.Content = text

	if err := m.setLastMessage(ctx, convo.ID, msg.ID); err != nil {
		return nil, err
	}
	return msg, nil
}

// List returns one page of messages in chronological order and, as its
// documented dual effect, marks every message in the conversation not
// authored by the requester as read by the requester. The mark-read write
// is a single atomic UpdateMany; re-listing is idempotent because read_by
// is a set.
func (m *MessagesStore) List(ctx context.Context, convo *Conversation, requester bson.ObjectID, page, pageSize int) ([]*Message, error) {
	if !convo.HasParticipant(requester) {
		return nil, NewError(KindForbidden, "requester is not a participant of this conversation")
	}

	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	// Mark read before fetching so the returned page reflects the new state.
	_, err := m.coll.UpdateMany(ctx,
		bson.M{
			"conversation_id": convo.ID,
			"sender_id":       bson.M{"$ne": requester},
			"read_by":         bson.M{"$ne": requester},
		},
		bson.M{"$addToSet": bson.M{"read_by": requester}},
	)
	if err != nil {
		return nil, err
	}

	// Newest page first internally; id breaks created_at ties.
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := m.coll.Find(ctx, bson.M{"conversation_id": convo.ID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []*Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	for _, msg := range messages {
		if msg.Content, err = m.codec.Decode(msg.Body); err != nil {
			return nil, err
		}
	}

	// Callers expect chronological order: oldest first within the page.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetByID returns a decoded message that must belong to the conversation.
func (m *MessagesStore) GetByID(ctx context.Context, convoID, msgID bson.ObjectID) (*Message, error) {
	var msg Message
	err := m.coll.FindOne(ctx, bson.M{"_id": msgID, "conversation_id": convoID}).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, NewError(KindNotFound, "message not found")
		}
		return nil, err
	}
	if msg.Content, err = m.codec.Decode(msg.Body); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Edit replaces the content of a text message. Sender-only, text-only and
// only within the edit window from creation.
func (m *MessagesStore) Edit(ctx context.Context, convo *Conversation, msgID, actor bson.ObjectID, newContent string) (*Message, error) {
	msg, err := m.GetByID(ctx, convo.ID, msgID)
	if err != nil {
		return nil, err
	}

	if msg.IsSystem() {
		return nil, NewError(KindInvalidInput, "system messages cannot be edited")
	}
	if msg.SenderID != actor {
		return nil, NewError(KindForbidden, "only the sender can edit a message")
	}
	if msg.Kind != KindText {
		return nil, NewError(KindInvalidInput, "only text messages can be edited")
	}
	if time.Since(msg.CreatedAt) > EditWindow {
		return nil, NewError(KindExpired, "the edit window for this message has elapsed")
	}
	if newContent == "" {
		return nil, NewError(KindInvalidInput, "message content is required")
	}
	if utf8.RuneCountInString(newContent) > MaxTextLength {
		return nil, NewError(KindInvalidInput, "message exceeds the 2000 character limit")
	}

	body, err := m.codec.Encode(newContent)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updated := m.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": msgID, "conversation_id": convo.ID},
		bson.M{"$set": bson.M{"body": body, "edited_at": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var out Message
	if err := updated.Decode(&out); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, NewError(KindNotFound, "message not found")
		}
		return nil, err
	}
	out.Content = newContent
	return &out, nil
}

// Delete removes a message. Same authorization as Edit, no time window.
// When the deleted message was the conversation's last message, the
// pointer is recomputed from the newest remaining message.
func (m *MessagesStore) Delete(ctx context.Context, convo *Conversation, msgID, actor bson.ObjectID) error {
	msg, err := m.GetByID(ctx, convo.ID, msgID)
	if err != nil {
		return err
	}

	if msg.IsSystem() {
		return NewError(KindInvalidInput, "system messages cannot be deleted")
	}
	if msg.SenderID != actor {
		return NewError(KindForbidden, "only the sender can delete a message")
	}

	if _, err := m.coll.DeleteOne(ctx, bson.M{"_id": msgID}); err != nil {
		return err
	}

	return m.recomputeLastMessage(ctx, convo.ID, msgID)
}

// recomputeLastMessage repairs the denormalized last-message pointer after
// a delete. The filtered update is the compare half of a compare-and-set:
// it only fires when the pointer still names the deleted message, so a
// concurrent Send that already moved the pointer is never clobbered.
func (m *MessagesStore) recomputeLastMessage(ctx context.Context, convoID, deleted bson.ObjectID) error {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	var newest Message
	err := m.coll.FindOne(ctx, bson.M{"conversation_id": convoID}, opts).Decode(&newest)

	filter := bson.M{"_id": convoID, "last_message_id": deleted}
	var update bson.M
	switch {
	case err == mongo.ErrNoDocuments:
		update = bson.M{"$unset": bson.M{"last_message_id": ""}}
	case err != nil:
		return err
	default:
		update = bson.M{"$set": bson.M{"last_message_id": newest.ID}}
	}

	_, err = m.convos.UpdateOne(ctx, filter, update)
	return err
}

// React applies the single-slot reaction semantics: empty kind removes,
// the same kind toggles off, a different kind replaces with a fresh
// timestamp. Returns the message's reaction set after the change.
func (m *MessagesStore) React(ctx context.Context, convo *Conversation, msgID, actor bson.ObjectID, kind string) (map[string]Reaction, error) {
	if !convo.HasParticipant(actor) {
		return nil, NewError(KindForbidden, "actor is not a participant of this conversation")
	}
	if kind != "" && !ValidReactionKind(kind) {
		return nil, NewError(KindInvalidInput, "unknown reaction kind")
	}

	var msg Message
	err := m.coll.FindOne(ctx, bson.M{"_id": msgID, "conversation_id": convo.ID}).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, NewError(KindNotFound, "message not found")
		}
		return nil, err
	}

	field := "reactions." + actor.Hex()
	existing, has := msg.Reactions[actor.Hex()]

	var update bson.M
	switch {
	case kind == "" && !has:
		// Removing a reaction that does not exist is a no-op.
		return msg.Reactions, nil
	case kind == "", has && existing.Kind == kind:
		update = bson.M{"$unset": bson.M{field: ""}}
	default:
		update = bson.M{"$set": bson.M{field: Reaction{Kind: kind, At: time.Now()}}}
	}

	updated := m.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": msgID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var out Message
	if err := updated.Decode(&out); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, NewError(KindNotFound, "message not found")
		}
		return nil, err
	}
	if out.Reactions == nil {
		return map[string]Reaction{}, nil
	}
	return out.Reactions, nil
}

// UnreadCountGlobal sums, over every conversation containing the user, the
// messages the user has neither sent nor read. Computed straight from the
// message log; there is no counter table to drift.
func (m *MessagesStore) UnreadCountGlobal(ctx context.Context, user bson.ObjectID) (int64, error) {
	ids, err := m.conversationIDsFor(ctx, user)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	return m.coll.CountDocuments(ctx, bson.M{
		"conversation_id": bson.M{"$in": ids},
		"sender_id":       bson.M{"$ne": user},
		"read_by":         bson.M{"$ne": user},
	})
}

// UnreadByConversation returns unread counts keyed by conversation hex id
// for the given conversations.
func (m *MessagesStore) UnreadByConversation(ctx context.Context, user bson.ObjectID, convoIDs []bson.ObjectID) (map[string]int64, error) {
	counts := make(map[string]int64, len(convoIDs))
	if len(convoIDs) == 0 {
		return counts, nil
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "conversation_id", Value: bson.D{{Key: "$in", Value: convoIDs}}},
			{Key: "sender_id", Value: bson.D{{Key: "$ne", Value: user}}},
			{Key: "read_by", Value: bson.D{{Key: "$ne", Value: user}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$conversation_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		ID    bson.ObjectID `bson:"_id"`
		Count int64         `bson:"count"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	for _, r := range results {
		counts[r.ID.Hex()] = r.Count
	}
	return counts, nil
}

// GetManyByID returns decoded messages keyed by hex id. Used to hydrate
// last-message previews for the inbox.
func (m *MessagesStore) GetManyByID(ctx context.Context, ids []bson.ObjectID) (map[string]*Message, error) {
	out := make(map[string]*Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cursor, err := m.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*Message
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.Content, err = m.codec.Decode(doc.Body); err != nil {
			return nil, err
		}
		out[doc.ID.Hex()] = doc
	}
	return out, nil
}

// deleteAllInConversation cascades a conversation deletion to its log.
func (m *MessagesStore) deleteAllInConversation(ctx context.Context, convoID bson.ObjectID) error {
	_, err := m.coll.DeleteMany(ctx, bson.M{"conversation_id": convoID})
	return err
}

// conversationIDsFor lists ids of conversations containing user.
func (m *MessagesStore) conversationIDsFor(ctx context.Context, user bson.ObjectID) ([]bson.ObjectID, error) {
	var ids []bson.ObjectID
	err := m.convos.Distinct(ctx, "_id", bson.M{"participants": user}).Decode(&ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// setLastMessage moves the conversation pointer after a durable append.
func (m *MessagesStore) setLastMessage(ctx context.Context, convoID, msgID bson.ObjectID) error {
	_, err := m.convos.UpdateOne(ctx,
		bson.M{"_id": convoID},
		bson.M{"$set": bson.M{"last_message_id": msgID, "updated_at": time.Now()}},
	)
	return err
}
