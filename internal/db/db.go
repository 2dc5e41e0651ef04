// Package db manages MongoDB connections and collections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Client wraps mongo.Client and exposes the messaging collections.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and verifies the connection with a ping.
func New(ctx context.Context, mongoURI string) (*Client, error) {
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database("messaging_db"),
	}, nil
}

// UsersCollection returns the users collection.
func (c *Client) UsersCollection() *mongo.Collection {
	return c.db.Collection("users")
}

// ConversationsCollection returns the conversations collection.
func (c *Client) ConversationsCollection() *mongo.Collection {
	return c.db.Collection("conversations")
}

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	return c.db.Collection("messages")
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the stores rely on.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// Unique email: prevents duplicate registration, used by login lookups.
	usersIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := c.UsersCollection().Indexes().CreateOne(ctx, usersIndex); err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	conversationIndexes := []mongo.IndexModel{
		{
			// Unique sorted participant-pair key for direct conversations.
			// This is the backstop for the lookup-then-create race: the losing
			// writer gets a duplicate-key error and re-looks-up. Partial so
			// group conversations (which carry no pair key) are unconstrained.
			Keys: bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"pair_key": bson.M{"$exists": true}}),
		},
		{
			// Inbox listing: conversations of a user, most recently active first.
			Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	}
	if _, err := c.ConversationsCollection().Indexes().CreateMany(ctx, conversationIndexes); err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}

	messageIndexes := []mongo.IndexModel{
		{
			// Message paging: per-conversation total order (created_at, _id).
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
		},
		{
			// Unread accounting filters on sender and read_by per conversation.
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "sender_id", Value: 1}, {Key: "read_by", Value: 1}},
		},
	}
	if _, err := c.MessagesCollection().Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	return nil
}
