package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ConversationsStore is the conversation directory: deterministic direct
// conversation lookup/creation, group lifecycle and membership, mute
// flags and the denormalized last-message pointer.
type ConversationsStore struct {
	coll  *mongo.Collection
	msgs  *MessagesStore
	users *UsersStore
}

// NewConversationsStore returns a ConversationsStore. msgs is used for
// system narration messages and deletion cascades, users for hydrating
// the display names those narrations carry.
func NewConversationsStore(coll *mongo.Collection, msgs *MessagesStore, users *UsersStore) *ConversationsStore {
	return &ConversationsStore{coll: coll, msgs: msgs, users: users}
}

// pairKey derives the serialization key for a direct conversation: the
// two participant ids in lexicographic order. Both call orders of the
// same pair produce the same key, and the unique index on it enforces
// system-wide pair uniqueness.
func pairKey(a, b bson.ObjectID) string {
	ha, hb := a.Hex(), b.Hex()
	if ha > hb {
		ha, hb = hb, ha
	}
	return ha + ":" + hb
}

// Get loads a conversation by id.
func (c *ConversationsStore) Get(ctx context.Context, id bson.ObjectID) (*Conversation, error) {
	var convo Conversation
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&convo)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, NewError(KindNotFound, "conversation not found")
		}
		return nil, err
	}
	return &convo, nil
}

// ListForUser returns the user's conversations, most recently active
// first.
func (c *ConversationsStore) ListForUser(ctx context.Context, user bson.ObjectID) ([]*Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := c.coll.Find(ctx, bson.M{"participants": user}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var convos []*Conversation
	if err := cursor.All(ctx, &convos); err != nil {
		return nil, err
	}
	return convos, nil
}

// FindOrCreateDirect resolves the single direct conversation for a pair
// of users, creating it lazily. The returned flag reports whether this
// call created the document. Concurrent calls from both ends of the
// pair may race on lookup-then-create; the unique pair-key index makes
// the loser's insert fail with a duplicate-key error, after which we
// re-look-up the winner's document.
func (c *ConversationsStore) FindOrCreateDirect(ctx context.Context, userA, userB bson.ObjectID) (*Conversation, bool, error) {
	if userA == userB {
		return nil, false, NewError(KindInvalidInput, "cannot open a conversation with yourself")
	}

	existing, err := c.users.CountExisting(ctx, []bson.ObjectID{userA, userB})
	if err != nil {
		return nil, false, err
	}
	if existing != 2 {
		return nil, false, NewError(KindNotFound, "user not found")
	}

	key := pairKey(userA, userB)

	var convo Conversation
	err = c.coll.FindOne(ctx, bson.M{"pair_key": key}).Decode(&convo)
	if err == nil {
		return &convo, false, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, false, err
	}

	now := time.Now()
	fresh := &Conversation{
		IsGroup:      false,
		PairKey:      key,
		Participants: []bson.ObjectID{userA, userB},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := c.coll.InsertOne(ctx, fresh)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Lost the creation race; the other end's document is the one.
			if ferr := c.coll.FindOne(ctx, bson.M{"pair_key": key}).Decode(&convo); ferr == nil {
				return &convo, false, nil
			}
		}
		return nil, false, err
	}

	fresh.ID = result.InsertedID.(bson.ObjectID)
	return fresh, true, nil
}

// CreateGroup creates a group conversation. The creator always ends up in
// both participants and admins, and a system message announcing the
// creation becomes the group's first (and last) message.
func (c *ConversationsStore) CreateGroup(ctx context.Context, creator bson.ObjectID, name string, participants []bson.ObjectID, image string) (*Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewError(KindInvalidInput, "group name is required")
	}

	// Creator first, then the provided members in order, duplicates dropped.
	members := []bson.ObjectID{creator}
	for _, p := range participants {
		if !containsID(members, p) {
			members = append(members, p)
		}
	}

	existing, err := c.users.CountExisting(ctx, members)
	if err != nil {
		return nil, err
	}
	if existing != int64(len(members)) {
		return nil, NewError(KindNotFound, "one or more participants not found")
	}

	now := time.Now()
	convo := &Conversation{
		IsGroup:      true,
		Participants: members,
		GroupName:    name,
		GroupImage:   image,
		CreatorID:    creator,
		Admins:       []bson.ObjectID{creator},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := c.coll.InsertOne(ctx, convo)
	if err != nil {
		return nil, err
	}
	convo.ID = result.InsertedID.(bson.ObjectID)

	creatorName, err := c.displayName(ctx, creator)
	if err != nil {
		return nil, err
	}
	sys, err := c.msgs.AppendSystem(ctx, convo, fmt.Sprintf("%s a créé le groupe %q", creatorName, name))
	if err != nil {
		return nil, err
	}
	convo.LastMessage = sys.ID
	convo.UpdatedAt = sys.CreatedAt
	return convo, nil
}

// GroupPatch carries the mutable group display metadata. Nil fields are
// left untouched.
type GroupPatch struct {
	Name  *string
	Image *string
}

// UpdateGroup renames or restyles a group. Admin-only.
func (c *ConversationsStore) UpdateGroup(ctx context.Context, convoID, actor bson.ObjectID, patch GroupPatch) (*Conversation, error) {
	convo, err := c.Get(ctx, convoID)
	if err != nil {
		return nil, err
	}
	if !convo.IsGroup {
		return nil, NewError(KindInvalidInput, "not a group conversation")
	}
	if !convo.HasAdmin(actor) {
		return nil, NewError(KindForbidden, "only admins can edit the group")
	}

	set := bson.M{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, NewError(KindInvalidInput, "group name cannot be empty")
		}
		set["group_name"] = name
	}
	if patch.Image != nil {
		set["group_image"] = *patch.Image
	}
	if len(set) == 0 {
		return nil, NewError(KindInvalidInput, "nothing to update")
	}

	updated := c.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": convoID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var out Conversation
	if err := updated.Decode(&out); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, NewError(KindNotFound, "conversation not found")
		}
		return nil, err
	}
	return &out, nil
}

// AddParticipants adds users to a group. Admin-only. Users already in the
// group are silently dropped; an empty remainder is invalid input. A
// system message names the added users.
func (c *ConversationsStore) AddParticipants(ctx context.Context, convoID, actor bson.ObjectID, newUsers []bson.ObjectID) (*Conversation, error) {
	convo, err := c.Get(ctx, convoID)
	if err != nil {
		return nil, err
	}
	if !convo.IsGroup {
		return nil, NewError(KindInvalidInput, "not a group conversation")
	}
	if !convo.HasAdmin(actor) {
		return nil, NewError(KindForbidden, "only admins can add participants")
	}

	var added []bson.ObjectID
	for _, u := range newUsers {
		if !convo.HasParticipant(u) && !containsID(added, u) {
			added = append(added, u)
		}
	}
	if len(added) == 0 {
		return nil, NewError(KindInvalidInput, "no users to add")
	}

	existing, err := c.users.CountExisting(ctx, added)
	if err != nil {
		return nil, err
	}
	if existing != int64(len(added)) {
		return nil, NewError(KindNotFound, "one or more users not found")
	}

	_, err = c.coll.UpdateOne(ctx,
		bson.M{"_id": convoID},
		bson.M{"$addToSet": bson.M{"participants": bson.M{"$each": added}}},
	)
	if err != nil {
		return nil, err
	}

	// Reload so the narration reflects the membership at append time.
	convo, err = c.Get(ctx, convoID)
	if err != nil {
		return nil, err
	}

	actorName, err := c.displayName(ctx, actor)
	if err != nil {
		return nil, err
	}
	addedNames, err := c.displayNames(ctx, added)
	if err != nil {
		return nil, err
	}
	sys, err := c.msgs.AppendSystem(ctx, convo, fmt.Sprintf("%s a ajouté %s", actorName, strings.Join(addedNames, ", ")))
	if err != nil {
		return nil, err
	}
	convo.LastMessage = sys.ID
	convo.UpdatedAt = sys.CreatedAt
	return convo, nil
}

// RemoveParticipant removes target from a group. Admins may remove anyone
// but the creator; anyone may remove themself (leave). Removing the last
// participant deletes the group and its messages, in which case the
// returned conversation is nil. When the creator leaves, ownership
// transfers to the first remaining admin in stored participant order,
// else the first remaining participant, who is promoted to admin.
func (c *ConversationsStore) RemoveParticipant(ctx context.Context, convoID, actor, target bson.ObjectID) (*Conversation, error) {
	convo, err := c.Get(ctx, convoID)
	if err != nil {
		return nil, err
	}
	if !convo.IsGroup {
		return nil, NewError(KindInvalidInput, "not a group conversation")
	}
	if actor != target && !convo.HasAdmin(actor) {
		return nil, NewError(KindForbidden, "only admins can remove participants")
	}
	if target == convo.CreatorID && actor != target {
		return nil, NewError(KindForbidden, "the group creator cannot be removed")
	}
	if !convo.HasParticipant(target) {
		return nil, NewError(KindNotFound, "user is not a participant")
	}

	// A group whose membership reaches zero is deleted, not retained.
	if len(convo.Participants) == 1 {
		if err := c.msgs.deleteAllInConversation(ctx, convoID); err != nil {
			return nil, err
		}
		if _, err := c.coll.DeleteOne(ctx, bson.M{"_id": convoID}); err != nil {
			return nil, err
		}
		return nil, nil
	}

	update := bson.M{"$pull": bson.M{
		"participants": target,
		"admins":       target,
		"muted_by":     target,
	}}
	set := bson.M{}
	if target == convo.CreatorID {
		successor := c.pickSuccessor(convo, target)
		set["creator_id"] = successor
		update["$addToSet"] = bson.M{"admins": successor}
	}
	if len(set) > 0 {
		update["$set"] = set
	}

	if _, err := c.coll.UpdateOne(ctx, bson.M{"_id": convoID}, update); err != nil {
		return nil, err
	}

	convo, err = c.Get(ctx, convoID)
	if err != nil {
		return nil, err
	}

	targetName, err := c.displayName(ctx, target)
	if err != nil {
		return nil, err
	}
	var text string
	if actor == target {
		text = fmt.Sprintf("%s a quitté le groupe", targetName)
	} else {
		actorName, err := c.displayName(ctx, actor)
		if err != nil {
			return nil, err
		}
		text = fmt.Sprintf("%s a retiré %s", actorName, targetName)
	}

	sys, err := c.msgs.AppendSystem(ctx, convo, text)
	if err != nil {
		return nil, err
	}
	convo.LastMessage = sys.ID
	convo.UpdatedAt = sys.CreatedAt
	return convo, nil
}

// pickSuccessor chooses the new owner when the creator leaves: the first
// remaining admin in stored participant order, else the first remaining
// participant. Participant order is insertion order, which Mongo
// preserves, so the rule is deterministic.
func (c *ConversationsStore) pickSuccessor(convo *Conversation, leaving bson.ObjectID) bson.ObjectID {
	for _, p := range convo.Participants {
		if p != leaving && convo.HasAdmin(p) {
			return p
		}
	}
	for _, p := range convo.Participants {
		if p != leaving {
			return p
		}
	}
	return bson.ObjectID{}
}

// ToggleMute flips the actor's mute flag and returns the updated
// conversation together with the new state.
func (c *ConversationsStore) ToggleMute(ctx context.Context, convoID, actor bson.ObjectID) (*Conversation, bool, error) {
	convo, err := c.Get(ctx, convoID)
	if err != nil {
		return nil, false, err
	}
	if !convo.HasParticipant(actor) {
		return nil, false, NewError(KindForbidden, "actor is not a participant of this conversation")
	}

	var update bson.M
	if convo.IsMutedBy(actor) {
		update = bson.M{"$pull": bson.M{"muted_by": actor}}
	} else {
		update = bson.M{"$addToSet": bson.M{"muted_by": actor}}
	}
	if _, err := c.coll.UpdateOne(ctx, bson.M{"_id": convoID}, update); err != nil {
		return nil, false, err
	}

	convo, err = c.Get(ctx, convoID)
	if err != nil {
		return nil, false, err
	}
	return convo, convo.IsMutedBy(actor), nil
}

// DeleteGroup deletes a group and cascades to its messages. Creator or
// admin only.
func (c *ConversationsStore) DeleteGroup(ctx context.Context, convoID, actor bson.ObjectID) error {
	convo, err := c.Get(ctx, convoID)
	if err != nil {
		return err
	}
	if !convo.IsGroup {
		return NewError(KindInvalidInput, "not a group conversation")
	}
	if actor != convo.CreatorID && !convo.HasAdmin(actor) {
		return NewError(KindForbidden, "only the creator or an admin can delete the group")
	}

	if err := c.msgs.deleteAllInConversation(ctx, convoID); err != nil {
		return err
	}
	_, err = c.coll.DeleteOne(ctx, bson.M{"_id": convoID})
	return err
}

func (c *ConversationsStore) displayName(ctx context.Context, id bson.ObjectID) (string, error) {
	user, err := c.users.GetUserByID(ctx, id)
	if err != nil {
		return "", err
	}
	return user.DisplayName, nil
}

func (c *ConversationsStore) displayNames(ctx context.Context, ids []bson.ObjectID) ([]string, error) {
	users, err := c.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id.Hex()]; ok {
			names = append(names, u.DisplayName)
		}
	}
	return names, nil
}
