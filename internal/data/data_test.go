package data

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"parley/internal/db"
	"parley/internal/revoke"
)

// plainCodec keeps test fixtures readable; the real codec is exercised by
// its own tests.
type plainCodec struct{}

func (plainCodec) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (plainCodec) Decode(b []byte) (string, error) { return string(b), nil }

// stubUploader pretends to be the object store.
type stubUploader struct {
	calls int
}

func (u *stubUploader) Upload(_ context.Context, _ []byte, kind string) (string, error) {
	u.calls++
	return fmt.Sprintf("https://media.example.com/%s/%d", kind, u.calls), nil
}

type testEnv struct {
	client *db.Client
	users  *UsersStore
	convos *ConversationsStore
	msgs   *MessagesStore
	upload *stubUploader
	dedupe *revoke.MemoryStore
}

// newTestEnv connects to the integration database, resets the collections
// and wires the stores together. Tests skip when MONGODB_URI is not set.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	// no env loader; require MONGODB_URI set externally for integration tests
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	c, err := db.New(ctx, uri)
	if err != nil {
		t.Fatalf("db.New failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	// ensure clean collections
	_ = c.UsersCollection().Drop(ctx)
	_ = c.ConversationsCollection().Drop(ctx)
	_ = c.MessagesCollection().Drop(ctx)

	// the pair-key uniqueness tests need the real indexes in place
	if err := c.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
	}

	dedupe := revoke.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = dedupe.Close() })

	upload := &stubUploader{}
	users := NewUsersStore(c.UsersCollection())
	msgs := NewMessagesStore(c.MessagesCollection(), c.ConversationsCollection(), plainCodec{}, upload, dedupe)
	convos := NewConversationsStore(c.ConversationsCollection(), msgs, users)

	return &testEnv{client: c, users: users, convos: convos, msgs: msgs, upload: upload, dedupe: dedupe}
}

func (e *testEnv) createUser(t *testing.T, displayName string) bson.ObjectID {
	t.Helper()
	user, err := e.users.CreateUser(context.Background(), displayName+"@example.com", "not-a-real-hash", displayName)
	if err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", displayName, err)
	}
	return user.ID
}
