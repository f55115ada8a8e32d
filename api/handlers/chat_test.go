package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaj13/go-guardian/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/profitwave/support-chat-api/api"
	mocksdb "github.com/profitwave/support-chat-api/databases/mocks"
	"github.com/profitwave/support-chat-api/models"
)

func userRequest(t *testing.T, method, target string, body interface{}, userID string) *http.Request {
	t.Helper()
	return authRequest(t, method, target, body, auth.NewDefaultUser("user@example.com", userID, nil, nil))
}

func adminRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	return authRequest(t, method, target, body, auth.NewDefaultUser("support@profitwave.io", "admin1", []string{api.AdminGroup}, nil))
}

func authRequest(t *testing.T, method, target string, body interface{}, info auth.Info) *http.Request {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	return api.WithAuthInfo(req, info)
}

func TestChatHistoryHandler_MissingUserID(t *testing.T) {
	c := Chat{DB: &mocksdb.ChatDatabase{}}

	req := userRequest(t, http.MethodGet, "/api/v1/chat", nil, "u1")
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ChatHistoryHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChatHistoryHandler_ForbiddenForOtherUser(t *testing.T) {
	c := Chat{DB: &mocksdb.ChatDatabase{}}

	req := userRequest(t, http.MethodGet, "/api/v1/chat?userId=u2", nil, "u1")
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ChatHistoryHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestChatHistoryHandler_OwnConversation(t *testing.T) {
	msg := models.ChatMessage{
		ID:          primitive.NewObjectID(),
		UserID:      "u1",
		Type:        models.MessageTypeUser,
		Message:     "hello",
		MessageDate: primitive.NewDateTimeFromTime(time.Now().UTC()),
	}
	chatDB := &mocksdb.ChatDatabase{}
	chatDB.On("History", mock.Anything, "u1").Return([]models.ChatMessage{msg}, nil)
	c := Chat{DB: chatDB}

	req := userRequest(t, http.MethodGet, "/api/v1/chat?userId=u1", nil, "u1")
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ChatHistoryHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp models.ChatHistoryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello", resp.Messages[0].Message)
	chatDB.AssertExpectations(t)
}

func TestChatHistoryHandler_AdminReadsAnyConversation(t *testing.T) {
	chatDB := &mocksdb.ChatDatabase{}
	chatDB.On("History", mock.Anything, "u1").Return(nil, nil)
	c := Chat{DB: chatDB}

	req := adminRequest(t, http.MethodGet, "/api/v1/admin/chat?userId=u1", nil)
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ChatHistoryHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	// nil history still serializes as an empty array
	assert.JSONEq(t, `{"messages":[]}`, rr.Body.String())
}

func TestCreateChatMessageHandler_Success(t *testing.T) {
	chatDB := &mocksdb.ChatDatabase{}
	chatDB.On("InsertOne", mock.Anything, mock.MatchedBy(func(doc interface{}) bool {
		msg, ok := doc.(models.ChatMessage)
		return ok && msg.UserID == "u1" && msg.Type == models.MessageTypeUser && msg.Message == "I need help" && !msg.Read
	})).Return(&mocksdb.InsertOneResultHelper{}, nil)
	chatDB.On("UnreadCount", mock.Anything, "u1", models.MessageTypeUser).Return(int64(1), nil)
	c := Chat{DB: chatDB}

	req := userRequest(t, http.MethodPost, "/api/v1/chat", models.CreateChatMessageRequest{UserID: "u1", Message: "I need help"}, "u1")
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.CreateChatMessageHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var stored models.ChatMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stored))
	assert.False(t, stored.ID.IsZero())
	assert.Equal(t, models.MessageTypeUser, stored.Type)
	chatDB.AssertExpectations(t)
}

func TestCreateChatMessageHandler_MissingFields(t *testing.T) {
	c := Chat{DB: &mocksdb.ChatDatabase{}}

	req := userRequest(t, http.MethodPost, "/api/v1/chat", models.CreateChatMessageRequest{UserID: "u1"}, "u1")
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.CreateChatMessageHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateChatMessageHandler_ForbiddenForOtherUser(t *testing.T) {
	c := Chat{DB: &mocksdb.ChatDatabase{}}

	req := userRequest(t, http.MethodPost, "/api/v1/chat", models.CreateChatMessageRequest{UserID: "u2", Message: "hi"}, "u1")
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.CreateChatMessageHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAdminCreateChatMessageHandler_StoresAdminType(t *testing.T) {
	chatDB := &mocksdb.ChatDatabase{}
	chatDB.On("InsertOne", mock.Anything, mock.MatchedBy(func(doc interface{}) bool {
		msg, ok := doc.(models.ChatMessage)
		return ok && msg.UserID == "u1" && msg.Type == models.MessageTypeAdmin
	})).Return(&mocksdb.InsertOneResultHelper{}, nil)
	chatDB.On("UnreadCount", mock.Anything, "u1", models.MessageTypeAdmin).Return(int64(1), nil)
	c := Chat{DB: chatDB}

	req := adminRequest(t, http.MethodPost, "/api/v1/admin/chat", models.CreateChatMessageRequest{UserID: "u1", Message: "on it"})
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.AdminCreateChatMessageHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	chatDB.AssertExpectations(t)
}

func TestMarkChatMessageReadHandler_BadObjectID(t *testing.T) {
	c := Chat{DB: &mocksdb.ChatDatabase{}}

	req := userRequest(t, http.MethodPut, "/api/v1/chat", models.MarkChatMessageReadRequest{UserID: "u1", MessageID: "not-a-hex"}, "u1")
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.MarkChatMessageReadHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "failed to get objectID from Hex")
}

func TestMarkChatMessageReadHandler_UserMarksAdminMessages(t *testing.T) {
	msgID := primitive.NewObjectID()
	chatDB := &mocksdb.ChatDatabase{}
	chatDB.On("MarkRead", mock.Anything, "u1", msgID, models.MessageTypeAdmin).Return(int64(1), nil)
	c := Chat{DB: chatDB}

	req := userRequest(t, http.MethodPut, "/api/v1/chat", models.MarkChatMessageReadRequest{UserID: "u1", MessageID: msgID.Hex()}, "u1")
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.MarkChatMessageReadHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"modified":1}`, rr.Body.String())
	chatDB.AssertExpectations(t)
}

func TestMarkChatMessageReadHandler_AdminMarksUserMessages(t *testing.T) {
	msgID := primitive.NewObjectID()
	chatDB := &mocksdb.ChatDatabase{}
	chatDB.On("MarkRead", mock.Anything, "u1", msgID, models.MessageTypeUser).Return(int64(1), nil)
	c := Chat{DB: chatDB}

	req := adminRequest(t, http.MethodPut, "/api/v1/admin/chat", models.MarkChatMessageReadRequest{UserID: "u1", MessageID: msgID.Hex()})
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.MarkChatMessageReadHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	chatDB.AssertExpectations(t)
}

func TestConversationsHandler(t *testing.T) {
	chatDB := &mocksdb.ChatDatabase{}
	chatDB.On("Conversations", mock.Anything).Return([]models.ConversationSummary{
		{UserID: "u1", LastMessage: "hello", Unread: 2},
	}, nil)
	c := Chat{DB: chatDB}

	req := adminRequest(t, http.MethodGet, "/api/v1/admin/chat/conversations", nil)
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ConversationsHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp models.ConversationsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, int64(2), resp.Conversations[0].Unread)
	chatDB.AssertExpectations(t)
}

func TestCleanupStaleHandler(t *testing.T) {
	chatDB := &mocksdb.ChatDatabase{}
	chatDB.On("DeleteOlderThan", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		age := time.Since(cutoff)
		return age > 23*time.Hour && age < 25*time.Hour
	})).Return(int64(7), nil)
	c := Chat{DB: chatDB}

	req := adminRequest(t, http.MethodDelete, "/api/v1/admin/chat/stale", nil)
	rr := httptest.NewRecorder()
	http.HandlerFunc(c.CleanupStaleHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"deleted":7}`, rr.Body.String())
	chatDB.AssertExpectations(t)
}
