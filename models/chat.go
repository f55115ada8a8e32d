package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Message type constants, stored in the "type" discriminator field
const (
	MessageTypeUser  = "user"  // sent by the end user to support
	MessageTypeAdmin = "admin" // sent by a support operator to the user
)

// ChatMessage holds the structure for the chats collection in mongo
type ChatMessage struct {
	ID          primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	UserID      string             `json:"userId" bson:"userId"`
	Type        string             `json:"type" bson:"type"` // "user" or "admin"
	Message     string             `json:"message" bson:"message"`
	Read        bool               `json:"read" bson:"read"`
	MessageDate primitive.DateTime `json:"messageDate" bson:"messageDate"`
}

// ChatHistoryResponse is the body returned for a conversation history fetch
type ChatHistoryResponse struct {
	Messages []ChatMessage `json:"messages"`
}

// CreateChatMessageRequest is the body accepted to append a message to a conversation
type CreateChatMessageRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// MarkChatMessageReadRequest is the body accepted to flip one message to read
type MarkChatMessageReadRequest struct {
	UserID    string `json:"userId"`
	MessageID string `json:"messageId"`
}

// ConversationSummary is one row in the admin console's conversation list
type ConversationSummary struct {
	UserID          string             `json:"userId" bson:"_id"`
	LastMessage     string             `json:"lastMessage" bson:"lastMessage"`
	LastMessageDate primitive.DateTime `json:"lastMessageDate" bson:"lastMessageDate"`
	Unread          int64              `json:"unread" bson:"unread"`
}

// ConversationsResponse is the body returned for the admin conversation list
type ConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
}

// DeletedResponse reports how many documents a cleanup removed
type DeletedResponse struct {
	Deleted int64 `json:"deleted"`
}
