package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/profitwave/support-chat-api/api"
	"github.com/profitwave/support-chat-api/config"
	"github.com/profitwave/support-chat-api/databases"
	"github.com/profitwave/support-chat-api/models"
)

// StaleMessageAge is how old a chat message must be before the cleanup
// removes it
const StaleMessageAge = 24 * time.Hour

// Chat struct for handling chat message operations
type Chat struct {
	DB       databases.ChatDatabase
	Notifier *NotificationHub
}

// ChatHistoryHandler returns the full conversation for one user, ordered by
// message date ascending. Non-admin callers may only read their own
// conversation.
func (c Chat) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		config.ErrorStatus("userId is required", http.StatusBadRequest, w, errMissingUserID)
		return
	}
	if !c.authorized(r, userID) {
		config.ErrorStatus("cannot access another user's conversation", http.StatusForbidden, w, errForbidden)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	messages, err := c.DB.History(ctx, userID)
	if err != nil {
		config.ErrorStatus("failed to get chat history", http.StatusInternalServerError, w, err)
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}

	b, err := json.Marshal(models.ChatHistoryResponse{Messages: messages})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// CreateChatMessageHandler appends a user-authored message to a conversation
func (c Chat) CreateChatMessageHandler(w http.ResponseWriter, r *http.Request) {
	c.createMessage(w, r, models.MessageTypeUser)
}

// AdminCreateChatMessageHandler appends a support reply to a conversation
func (c Chat) AdminCreateChatMessageHandler(w http.ResponseWriter, r *http.Request) {
	c.createMessage(w, r, models.MessageTypeAdmin)
}

func (c Chat) createMessage(w http.ResponseWriter, r *http.Request, msgType string) {
	var req models.CreateChatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if req.UserID == "" || req.Message == "" {
		config.ErrorStatus("userId and message are required", http.StatusBadRequest, w, errMissingUserID)
		return
	}
	if msgType == models.MessageTypeUser && !c.authorized(r, req.UserID) {
		config.ErrorStatus("cannot write to another user's conversation", http.StatusForbidden, w, errForbidden)
		return
	}

	msg := models.ChatMessage{
		ID:          primitive.NewObjectID(),
		UserID:      req.UserID,
		Type:        msgType,
		Message:     req.Message,
		Read:        false,
		MessageDate: primitive.NewDateTimeFromTime(time.Now().UTC()),
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if _, err := c.DB.InsertOne(ctx, msg); err != nil {
		config.ErrorStatus("failed to insert chat message", http.StatusInternalServerError, w, err)
		return
	}

	unread, err := c.DB.UnreadCount(ctx, req.UserID, msgType)
	if err != nil {
		zap.S().Debugw("failed to count unread messages", "userId", req.UserID, "error", err)
	}
	c.Notifier.Notify(req.UserID, "chat-new-message", map[string]interface{}{
		"userId": req.UserID,
		"type":   msgType,
		"unread": unread,
	})

	b, err := json.Marshal(msg)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// MarkChatMessageReadHandler flips one message to read. The transition is
// one-way and only applies to messages authored by the other party; a user
// marks support replies, an admin marks user messages.
func (c Chat) MarkChatMessageReadHandler(w http.ResponseWriter, r *http.Request) {
	var req models.MarkChatMessageReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if req.UserID == "" {
		config.ErrorStatus("userId is required", http.StatusBadRequest, w, errMissingUserID)
		return
	}
	if !c.authorized(r, req.UserID) {
		config.ErrorStatus("cannot access another user's conversation", http.StatusForbidden, w, errForbidden)
		return
	}

	msgID, err := primitive.ObjectIDFromHex(req.MessageID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	// the reader marks the other party's messages
	authorType := models.MessageTypeAdmin
	if info := api.AuthInfo(r); info != nil && api.IsAdmin(info) {
		authorType = models.MessageTypeUser
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	modified, err := c.DB.MarkRead(ctx, req.UserID, msgID, authorType)
	if err != nil {
		config.ErrorStatus("failed to mark chat message read", http.StatusInternalServerError, w, err)
		return
	}
	if modified > 0 {
		c.Notifier.Notify(req.UserID, "chat-message-read", map[string]interface{}{
			"userId":    req.UserID,
			"messageId": req.MessageID,
		})
	}

	b, _ := json.Marshal(map[string]int64{"modified": modified})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// ConversationsHandler returns the admin console's conversation list with
// last messages and unread counters
func (c Chat) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	conversations, err := c.DB.Conversations(ctx)
	if err != nil {
		config.ErrorStatus("failed to get conversations", http.StatusInternalServerError, w, err)
		return
	}
	if conversations == nil {
		conversations = []models.ConversationSummary{}
	}

	b, err := json.Marshal(models.ConversationsResponse{Conversations: conversations})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// CleanupStaleHandler prunes messages older than the retention threshold.
// The scheduler runs the same cleanup daily; this endpoint is the operator
// trigger.
func (c Chat) CleanupStaleHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	deleted, err := c.DB.DeleteOlderThan(ctx, time.Now().UTC().Add(-StaleMessageAge))
	if err != nil {
		config.ErrorStatus("failed to delete stale chat messages", http.StatusInternalServerError, w, err)
		return
	}
	zap.S().Infow("pruned stale chat messages", "deleted", deleted)

	b, _ := json.Marshal(models.DeletedResponse{Deleted: deleted})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// authorized reports whether the caller may touch the given conversation:
// admins always, end users only their own.
func (c Chat) authorized(r *http.Request, userID string) bool {
	info := api.AuthInfo(r)
	if info == nil {
		return false
	}
	return api.IsAdmin(info) || info.ID() == userID
}
