package data

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// UsersStore performs user DB operations. It doubles as the identity
// lookup collaborator: participant validation and sender/reactor display
// hydration go through it.
type UsersStore struct {
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// NormalizeEmail returns the storage/comparison form of an email address:
// trimmed and lower-cased.
func NormalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// CreateUser inserts a new user document with an already-hashed password.
func (u *UsersStore) CreateUser(ctx context.Context, email, hashedPassword, displayName string) (*User, error) {
	now := time.Now()
	user := &User{
		Email:       NormalizeEmail(email),
		Password:    hashedPassword,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		// Unique email index violation means the account already exists.
		if mongo.IsDuplicateKeyError(err) {
			return nil, NewError(KindInvalidInput, "user already exists")
		}
		return nil, err
	}

	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByEmail finds a user by normalized email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": NormalizeEmail(email)}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, NewError(KindNotFound, "user not found")
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID finds a user by ObjectID.
func (u *UsersStore) GetUserByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, NewError(KindNotFound, "user not found")
		}
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs returns the users for the given ids keyed by hex id.
// Missing ids are simply absent from the map.
func (u *UsersStore) GetUsersByIDs(ctx context.Context, ids []bson.ObjectID) (map[string]*User, error) {
	users := make(map[string]*User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	cursor, err := u.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*User
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, doc := range docs {
		users[doc.ID.Hex()] = doc
	}
	return users, nil
}

// CountExisting returns how many of the given ids resolve to real users.
func (u *UsersStore) CountExisting(ctx context.Context, ids []bson.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return u.coll.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": ids}})
}
