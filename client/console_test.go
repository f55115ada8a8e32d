package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/profitwave/support-chat-api/models"
)

func TestConsole_AttachJoinsAdminRoom(t *testing.T) {
	ft := newFakeTransport(true)
	c := NewConsole(ConsoleConfig{})

	c.Attach(ft)

	require.Len(t, ft.emitted(models.EventJoinAdminRoom), 1)
	assert.Equal(t, StateConnected, c.State())
}

func TestConsole_RefreshSeedsConversationList(t *testing.T) {
	now := time.Now().UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/admin/chat/conversations", r.URL.Path)
		b, _ := json.Marshal(models.ConversationsResponse{Conversations: []models.ConversationSummary{
			{UserID: "u1", LastMessage: "hello", LastMessageDate: primitive.NewDateTimeFromTime(now), Unread: 2},
			{UserID: "u2", LastMessage: "thanks", LastMessageDate: primitive.NewDateTimeFromTime(now.Add(-time.Hour)), Unread: 0},
		}})
		w.Write(b)
	}))
	defer srv.Close()

	c := NewConsole(ConsoleConfig{REST: NewAdminRESTClient(srv.URL, "tok")})
	require.NoError(t, c.Refresh(context.Background()))

	convs := c.Conversations()
	require.Len(t, convs, 2)
	// most recent activity first
	assert.Equal(t, "u1", convs[0].UserID)
	assert.Equal(t, int64(2), convs[0].Unread)
	assert.Equal(t, "hello", convs[0].LastMessage)
}

func TestConsole_UserMessageBumpsUnreadWhenNotSelected(t *testing.T) {
	ft := newFakeTransport(true)
	bus := NewBus()
	var signals int
	bus.Subscribe(EventBusNewMessage, func(interface{}) { signals++ })

	c := NewConsole(ConsoleConfig{Bus: bus})
	c.Attach(ft)

	at := time.Now().UTC()
	ft.fire(t, models.EventNewUserMessage, models.NewUserMessagePayload{UserID: "u1", Message: "help", Timestamp: at})
	ft.fire(t, models.EventNewUserMessage, models.NewUserMessagePayload{UserID: "u1", Message: "please", Timestamp: at.Add(time.Second)})

	convs := c.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, int64(2), convs[0].Unread)
	assert.Equal(t, "please", convs[0].LastMessage)
	assert.Equal(t, 2, signals)
	assert.Empty(t, c.Messages())
}

func TestConsole_UserMessageAppendsToSelectedConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := json.Marshal(models.ChatHistoryResponse{Messages: []models.ChatMessage{}})
		w.Write(b)
	}))
	defer srv.Close()

	ft := newFakeTransport(true)
	c := NewConsole(ConsoleConfig{REST: NewAdminRESTClient(srv.URL, "tok")})
	c.Attach(ft)
	require.NoError(t, c.Select(context.Background(), "u1"))

	ft.fire(t, models.EventNewUserMessage, models.NewUserMessagePayload{UserID: "u1", Message: "help", Timestamp: time.Now().UTC()})

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "help", msgs[0].Body)

	convs := c.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, int64(0), convs[0].Unread)
}

func TestConsole_SelectMarksUserMessagesRead(t *testing.T) {
	unread := storeMsg("u1", models.MessageTypeUser, "help", time.Now().UTC(), false)

	var mu sync.Mutex
	var markedIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			b, _ := json.Marshal(models.ChatHistoryResponse{Messages: []models.ChatMessage{unread}})
			w.Write(b)
		case http.MethodPut:
			var req models.MarkChatMessageReadRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			mu.Lock()
			markedIDs = append(markedIDs, req.MessageID)
			mu.Unlock()
			w.Write([]byte(`{"modified":1}`))
		}
	}))
	defer srv.Close()

	c := NewConsole(ConsoleConfig{REST: NewAdminRESTClient(srv.URL, "tok")})
	require.NoError(t, c.Select(context.Background(), "u1"))

	require.Len(t, c.Messages(), 1)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(markedIDs) == 1 && markedIDs[0] == unread.ID.Hex()
	}, time.Second, 10*time.Millisecond)
}

func TestConsole_OnlineUsersPresence(t *testing.T) {
	ft := newFakeTransport(true)
	c := NewConsole(ConsoleConfig{})
	c.Attach(ft)

	ft.fire(t, models.EventOnlineUsers, []models.OnlineUser{{UserID: "u1"}, {UserID: "u2"}})
	ft.fire(t, models.EventOnlineUsers, []models.OnlineUser{{UserID: "u2"}})

	online := map[string]bool{}
	for _, conv := range c.Conversations() {
		online[conv.UserID] = conv.Online
	}
	assert.False(t, online["u1"])
	assert.True(t, online["u2"])
}

func TestConsole_TypingFlagFollowsEvents(t *testing.T) {
	ft := newFakeTransport(true)
	c := NewConsole(ConsoleConfig{})
	c.Attach(ft)

	ft.fire(t, models.EventUserTyping, models.TypingPayload{UserID: "u1", IsTyping: true})
	require.Len(t, c.Conversations(), 1)
	assert.True(t, c.Conversations()[0].IsTyping)

	ft.fire(t, models.EventUserTyping, models.TypingPayload{UserID: "u1", IsTyping: false})
	assert.False(t, c.Conversations()[0].IsTyping)
}

func TestConsole_SendMessageOverTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := json.Marshal(models.ChatHistoryResponse{Messages: []models.ChatMessage{}})
		w.Write(b)
	}))
	defer srv.Close()

	ft := newFakeTransport(true)
	c := NewConsole(ConsoleConfig{REST: NewAdminRESTClient(srv.URL, "tok")})
	c.Attach(ft)
	require.NoError(t, c.Select(context.Background(), "u1"))

	c.SendMessage(context.Background(), "u1", "looking into it")

	sends := ft.emitted(models.EventAdminMessage)
	require.Len(t, sends, 1)
	assert.Equal(t, models.AdminMessagePayload{UserID: "u1", Message: "looking into it"}, sends[0].payload)

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, DeliveryPending, msgs[0].Delivery)

	ft.fire(t, models.EventMessageSent, models.MessageSentPayload{Success: true})
	assert.Equal(t, DeliveryConfirmed, c.Messages()[0].Delivery)
}

func TestConsole_SendMessageFallsBackToREST(t *testing.T) {
	stored := storeMsg("u1", models.MessageTypeAdmin, "looking into it", time.Now().UTC(), false)
	var gotPost bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.Equal(t, "/api/v1/admin/chat", r.URL.Path)
			gotPost = true
			b, _ := json.Marshal(stored)
			w.Write(b)
			return
		}
		b, _ := json.Marshal(models.ChatHistoryResponse{Messages: []models.ChatMessage{}})
		w.Write(b)
	}))
	defer srv.Close()

	c := NewConsole(ConsoleConfig{REST: NewAdminRESTClient(srv.URL, "tok")})
	require.NoError(t, c.Select(context.Background(), "u1"))

	c.SendMessage(context.Background(), "u1", "looking into it")

	assert.True(t, gotPost)
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, stored.ID.Hex(), msgs[0].ID)
	assert.Equal(t, DeliveryConfirmed, msgs[0].Delivery)
}

func TestConsole_SetTypingEmits(t *testing.T) {
	ft := newFakeTransport(true)
	c := NewConsole(ConsoleConfig{})
	c.Attach(ft)

	c.SetTyping("u1", true)

	sends := ft.emitted(models.EventAdminTyping)
	require.Len(t, sends, 1)
	assert.Equal(t, models.TypingPayload{UserID: "u1", IsTyping: true}, sends[0].payload)
}
