package data

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestDirectConversationPairUnique(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	first, created, err := env.convos.FindOrCreateDirect(ctx, alice, bob)
	if err != nil {
		t.Fatalf("FindOrCreateDirect(alice, bob) failed: %v", err)
	}
	if !created {
		t.Fatal("first call should report the conversation as created")
	}
	second, created, err := env.convos.FindOrCreateDirect(ctx, bob, alice)
	if err != nil {
		t.Fatalf("FindOrCreateDirect(bob, alice) failed: %v", err)
	}
	if created {
		t.Fatal("second call found an existing conversation, it must not report created")
	}
	if first.ID != second.ID {
		t.Fatalf("expected both call orders to resolve the same conversation, got %s and %s", first.ID.Hex(), second.ID.Hex())
	}
	if first.IsGroup {
		t.Fatal("direct conversation marked as group")
	}

	if _, _, err := env.convos.FindOrCreateDirect(ctx, alice, alice); !IsKind(err, KindInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for self conversation, got %v", err)
	}

	ghost := bson.NewObjectID()
	if _, _, err := env.convos.FindOrCreateDirect(ctx, alice, ghost); !IsKind(err, KindNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown user, got %v", err)
	}
}

func TestDirectConversationConcurrentCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	const callers = 8
	ids := make([]bson.ObjectID, callers)
	createdFlags := make([]bool, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice, bob
			if i%2 == 1 {
				a, b = b, a
			}
			convo, created, err := env.convos.FindOrCreateDirect(ctx, a, b)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = convo.ID
			createdFlags[i] = created
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("callers resolved different conversations: %s vs %s", ids[0].Hex(), ids[i].Hex())
		}
		if createdFlags[i] {
			createdCount++
		}
	}
	if createdCount != 1 {
		t.Fatalf("exactly one caller should win the creation, %d reported created", createdCount)
	}

	count, err := env.client.ConversationsCollection().CountDocuments(ctx, bson.M{"pair_key": bson.M{"$exists": true}})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 direct conversation, got %d", count)
	}
}

func TestGroupCreationNarration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")
	chloe := env.createUser(t, "Chloé")

	convo, err := env.convos.CreateGroup(ctx, alice, "Projet", []bson.ObjectID{bob, chloe}, "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	if !convo.IsGroup {
		t.Fatal("group conversation not marked as group")
	}
	if convo.CreatorID != alice {
		t.Fatalf("expected creator %s, got %s", alice.Hex(), convo.CreatorID.Hex())
	}
	if len(convo.Participants) != 3 || convo.Participants[0] != alice {
		t.Fatalf("expected creator-first participants of 3, got %v", convo.Participants)
	}
	if len(convo.Admins) != 1 || convo.Admins[0] != alice {
		t.Fatalf("expected admins to be just the creator, got %v", convo.Admins)
	}

	messages, err := env.msgs.List(ctx, convo, bob, 0, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 system message, got %d", len(messages))
	}
	want := fmt.Sprintf("%s a créé le groupe %q", "Alice", "Projet")
	if messages[0].Content != want {
		t.Fatalf("expected narration %q, got %q", want, messages[0].Content)
	}
	if !messages[0].IsSystem() {
		t.Fatal("creation narration is not a system message")
	}

	// system narration is born read by every participant
	for _, user := range []bson.ObjectID{alice, bob, chloe} {
		unread, err := env.msgs.UnreadCountGlobal(ctx, user)
		if err != nil {
			t.Fatalf("UnreadCountGlobal failed: %v", err)
		}
		if unread != 0 {
			t.Fatalf("expected 0 unread for %s after group creation, got %d", user.Hex(), unread)
		}
	}
}

func TestGroupMembershipAndSuccession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")
	chloe := env.createUser(t, "Chloé")
	dan := env.createUser(t, "Dan")

	convo, err := env.convos.CreateGroup(ctx, alice, "Équipe", []bson.ObjectID{bob, chloe}, "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	// non-admin cannot add
	if _, err := env.convos.AddParticipants(ctx, convo.ID, bob, []bson.ObjectID{dan}); !IsKind(err, KindForbidden) {
		t.Fatalf("expected FORBIDDEN for non-admin add, got %v", err)
	}

	convo, err = env.convos.AddParticipants(ctx, convo.ID, alice, []bson.ObjectID{dan})
	if err != nil {
		t.Fatalf("AddParticipants failed: %v", err)
	}
	if !convo.HasParticipant(dan) {
		t.Fatal("added user is not a participant")
	}

	messages, err := env.msgs.List(ctx, convo, dan, 0, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	last := messages[len(messages)-1]
	if want := "Alice a ajouté Dan"; last.Content != want {
		t.Fatalf("expected narration %q, got %q", want, last.Content)
	}

	// non-admin cannot remove someone else
	if _, err := env.convos.RemoveParticipant(ctx, convo.ID, bob, chloe); !IsKind(err, KindForbidden) {
		t.Fatalf("expected FORBIDDEN for non-admin removal, got %v", err)
	}

	// admin removes a member
	convo, err = env.convos.RemoveParticipant(ctx, convo.ID, alice, chloe)
	if err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}
	if convo.HasParticipant(chloe) {
		t.Fatal("removed user still a participant")
	}
	messages, err = env.msgs.List(ctx, convo, bob, 0, 20)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	last = messages[len(messages)-1]
	if want := "Alice a retiré Chloé"; last.Content != want {
		t.Fatalf("expected narration %q, got %q", want, last.Content)
	}

	// nobody removes the creator but the creator
	if _, err := env.convos.RemoveParticipant(ctx, convo.ID, bob, alice); !IsKind(err, KindForbidden) {
		t.Fatalf("expected FORBIDDEN when removing the creator, got %v", err)
	}

	// creator leaves: ownership passes to the first remaining participant,
	// who is promoted to admin
	convo, err = env.convos.RemoveParticipant(ctx, convo.ID, alice, alice)
	if err != nil {
		t.Fatalf("creator leave failed: %v", err)
	}
	if convo.CreatorID != bob {
		t.Fatalf("expected ownership to pass to Bob, got %s", convo.CreatorID.Hex())
	}
	if !convo.HasAdmin(bob) {
		t.Fatal("successor was not promoted to admin")
	}
	messages, err = env.msgs.List(ctx, convo, bob, 0, 20)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	last = messages[len(messages)-1]
	if want := "Alice a quitté le groupe"; last.Content != want {
		t.Fatalf("expected narration %q, got %q", want, last.Content)
	}
}

func TestGroupEmptiedIsDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.createUser(t, "Alice")

	convo, err := env.convos.CreateGroup(ctx, alice, "Solo", nil, "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	convoID := convo.ID

	gone, err := env.convos.RemoveParticipant(ctx, convoID, alice, alice)
	if err != nil {
		t.Fatalf("last leave failed: %v", err)
	}
	if gone != nil {
		t.Fatalf("expected nil conversation after last leave, got %+v", gone)
	}

	if _, err := env.convos.Get(ctx, convoID); !IsKind(err, KindNotFound) {
		t.Fatalf("expected NOT_FOUND for the emptied group, got %v", err)
	}

	count, err := env.client.MessagesCollection().CountDocuments(ctx, bson.M{"conversation_id": convoID})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected message cascade delete, %d messages remain", count)
	}
}

func TestUpdateGroupAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	convo, err := env.convos.CreateGroup(ctx, alice, "Avant", []bson.ObjectID{bob}, "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	newName := "Après"
	if _, err := env.convos.UpdateGroup(ctx, convo.ID, bob, GroupPatch{Name: &newName}); !IsKind(err, KindForbidden) {
		t.Fatalf("expected FORBIDDEN for non-admin rename, got %v", err)
	}

	updated, err := env.convos.UpdateGroup(ctx, convo.ID, alice, GroupPatch{Name: &newName})
	if err != nil {
		t.Fatalf("UpdateGroup failed: %v", err)
	}
	if updated.GroupName != "Après" {
		t.Fatalf("expected renamed group, got %q", updated.GroupName)
	}

	empty := "   "
	if _, err := env.convos.UpdateGroup(ctx, convo.ID, alice, GroupPatch{Name: &empty}); !IsKind(err, KindInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for blank name, got %v", err)
	}
}

func TestToggleMuteAndInboxFlag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.createUser(t, "Alice")
	bob := env.createUser(t, "Bob")

	convo, _, err := env.convos.FindOrCreateDirect(ctx, alice, bob)
	if err != nil {
		t.Fatalf("FindOrCreateDirect failed: %v", err)
	}

	updated, muted, err := env.convos.ToggleMute(ctx, convo.ID, bob)
	if err != nil {
		t.Fatalf("ToggleMute failed: %v", err)
	}
	if !muted {
		t.Fatal("expected muted=true after first toggle")
	}
	if !updated.IsMutedBy(bob) {
		t.Fatal("returned conversation does not reflect the new mute state")
	}

	previews, err := env.convos.Inbox(ctx, bob)
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if len(previews) != 1 || !previews[0].Muted {
		t.Fatalf("expected one muted inbox entry, got %+v", previews)
	}

	// mute is per user
	previews, err = env.convos.Inbox(ctx, alice)
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if previews[0].Muted {
		t.Fatal("mute leaked to the other participant")
	}

	updated, muted, err = env.convos.ToggleMute(ctx, convo.ID, bob)
	if err != nil {
		t.Fatalf("ToggleMute failed: %v", err)
	}
	if muted {
		t.Fatal("expected muted=false after second toggle")
	}
	if updated.IsMutedBy(bob) {
		t.Fatal("returned conversation still carries the mute flag")
	}
}
