package databases

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/profitwave/support-chat-api/models"
)

const chatName = "chats"

// ChatDatabase contains the methods to use with the chat message database
type ChatDatabase interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.ChatMessage, error)
	History(ctx context.Context, userID string) ([]models.ChatMessage, error)
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error)
	MarkRead(ctx context.Context, userID string, messageID primitive.ObjectID, authorType string) (int64, error)
	UnreadCount(ctx context.Context, userID string, authorType string) (int64, error)
	Conversations(ctx context.Context) ([]models.ConversationSummary, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type chatDatabase struct {
	db DatabaseHelper
}

// NewChatDatabase initializes a new instance of chat database with the provided db connection
func NewChatDatabase(db DatabaseHelper) ChatDatabase {
	return &chatDatabase{
		db: db,
	}
}

func (c *chatDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.ChatMessage, error) {
	curr, err := c.db.Collection(chatName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var messages []models.ChatMessage
	if err := curr.Decode(&messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// History returns the full conversation for one user, ordered by messageDate
// ascending. Equal timestamps keep store arrival order.
func (c *chatDatabase) History(ctx context.Context, userID string) ([]models.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "messageDate", Value: 1}})
	return c.Find(ctx, bson.M{"userId": userID}, opts)
}

func (c *chatDatabase) InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error) {
	res := c.db.Collection(chatName).InsertOne(ctx, document, opts...)
	return res, nil
}

// MarkRead flips one message to read. The read:false filter makes the
// transition one-way, and the type filter keeps a party from marking its
// own messages.
func (c *chatDatabase) MarkRead(ctx context.Context, userID string, messageID primitive.ObjectID, authorType string) (int64, error) {
	filter := bson.M{
		"_id":    messageID,
		"userId": userID,
		"type":   authorType,
		"read":   false,
	}
	update := bson.M{"$set": bson.M{"read": true}}
	return c.db.Collection(chatName).UpdateOne(ctx, filter, update)
}

func (c *chatDatabase) UnreadCount(ctx context.Context, userID string, authorType string) (int64, error) {
	filter := bson.M{
		"userId": userID,
		"type":   authorType,
		"read":   false,
	}
	return c.db.Collection(chatName).CountDocuments(ctx, filter)
}

// Conversations groups the chat collection by user and reports the last
// message plus the count of unread user-authored messages for the admin
// console's conversation list.
func (c *chatDatabase) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	pipeline := []bson.M{
		{"$sort": bson.M{"messageDate": 1}},
		{"$group": bson.M{
			"_id":             "$userId",
			"lastMessage":     bson.M{"$last": "$message"},
			"lastMessageDate": bson.M{"$last": "$messageDate"},
			"unread": bson.M{"$sum": bson.M{"$cond": []interface{}{
				bson.M{"$and": []bson.M{
					{"$eq": []string{"$type", models.MessageTypeUser}},
					{"$eq": []interface{}{"$read", false}},
				}},
				1,
				0,
			}}},
		}},
		{"$sort": bson.M{"lastMessageDate": -1}},
	}

	curr, err := c.db.Collection(chatName).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var conversations []models.ConversationSummary
	if err := curr.Decode(&conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (c *chatDatabase) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{"messageDate": bson.M{"$lt": primitive.NewDateTimeFromTime(cutoff)}}
	return c.db.Collection(chatName).DeleteMany(ctx, filter)
}
