package chathub_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/profitwave/support-chat-api/api/chathub"
	"github.com/profitwave/support-chat-api/models"
)

type emitted struct {
	Event   string
	Payload interface{}
}

type fakeConn struct {
	id    string
	ident chathub.Identity

	mu     sync.Mutex
	events []emitted
}

func (f *fakeConn) ID() string                 { return f.id }
func (f *fakeConn) Identity() chathub.Identity { return f.ident }

func (f *fakeConn) Emit(event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{Event: event, Payload: payload})
}

func (f *fakeConn) received(event string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func newUserConn(h *chathub.Hub, id, userID string) *fakeConn {
	c := &fakeConn{id: id, ident: chathub.Identity{UserID: userID}}
	h.Connect(c)
	h.JoinUserRoom(c)
	return c
}

func newAdminConn(h *chathub.Hub, id string) *fakeConn {
	c := &fakeConn{id: id, ident: chathub.Identity{UserID: "support-" + id, Admin: true}}
	h.Connect(c)
	h.JoinAdminRoom(c)
	return c
}

func TestHub_RoomIsolation(t *testing.T) {
	h := chathub.New(100, 100, nil)
	userA := newUserConn(h, "c1", "userA")
	userB := newUserConn(h, "c2", "userB")
	admin := newAdminConn(h, "c3")

	h.AdminMessage(admin, "userA", "hello A")

	gotA := userA.received(models.EventNewAdminMessage)
	if assert.Len(t, gotA, 1) {
		payload := gotA[0].Payload.(models.NewAdminMessagePayload)
		assert.Equal(t, "hello A", payload.Message)
	}
	assert.Empty(t, userB.received(models.EventNewAdminMessage))
}

func TestHub_UserMessageRelayAndReply(t *testing.T) {
	h := chathub.New(100, 100, nil)
	user := newUserConn(h, "c1", "u1")
	admin := newAdminConn(h, "c2")

	h.UserMessage(user, "Hello")

	relayed := admin.received(models.EventNewUserMessage)
	if assert.Len(t, relayed, 1) {
		payload := relayed[0].Payload.(models.NewUserMessagePayload)
		assert.Equal(t, "u1", payload.UserID)
		assert.Equal(t, "Hello", payload.Message)
		assert.False(t, payload.Timestamp.IsZero())
	}

	acks := user.received(models.EventMessageSent)
	if assert.Len(t, acks, 1) {
		assert.True(t, acks[0].Payload.(models.MessageSentPayload).Success)
	}
	// the ack goes to the sender only
	assert.Empty(t, admin.received(models.EventMessageSent))

	h.AdminMessage(admin, "u1", "Hi, how can I help?")

	replies := user.received(models.EventNewAdminMessage)
	if assert.Len(t, replies, 1) {
		assert.Equal(t, "Hi, how can I help?", replies[0].Payload.(models.NewAdminMessagePayload).Message)
	}
}

func TestHub_JoinAdminRoomRequiresAdminIdentity(t *testing.T) {
	h := chathub.New(100, 100, nil)
	user := &fakeConn{id: "c1", ident: chathub.Identity{UserID: "u1"}}
	h.Connect(user)

	assert.False(t, h.JoinAdminRoom(user))

	other := newUserConn(h, "c2", "u2")
	h.UserMessage(other, "should not reach c1")
	assert.Empty(t, user.received(models.EventNewUserMessage))
}

func TestHub_JoinUserRoomRefusedForAdmins(t *testing.T) {
	h := chathub.New(100, 100, nil)
	admin := &fakeConn{id: "c1", ident: chathub.Identity{UserID: "support", Admin: true}}
	h.Connect(admin)

	assert.False(t, h.JoinUserRoom(admin))
}

func TestHub_UserMessageRateLimited(t *testing.T) {
	h := chathub.New(1, 2, nil)
	user := newUserConn(h, "c1", "u1")
	admin := newAdminConn(h, "c2")

	h.UserMessage(user, "one")
	h.UserMessage(user, "two")
	h.UserMessage(user, "three")

	assert.Len(t, admin.received(models.EventNewUserMessage), 2)

	acks := user.received(models.EventMessageSent)
	if assert.Len(t, acks, 3) {
		last := acks[2].Payload.(models.MessageSentPayload)
		assert.False(t, last.Success)
		assert.Equal(t, "rate limited", last.Error)
	}
}

func TestHub_PresenceBroadcastOnConnectAndDisconnect(t *testing.T) {
	h := chathub.New(100, 100, nil)
	admin := newAdminConn(h, "c1")

	user := newUserConn(h, "c2", "u1")

	lists := admin.received(models.EventOnlineUsers)
	if assert.NotEmpty(t, lists) {
		online := lists[len(lists)-1].Payload.([]models.OnlineUser)
		assert.Contains(t, online, models.OnlineUser{UserID: "u1"})
	}

	h.Disconnect(user)

	lists = admin.received(models.EventOnlineUsers)
	online := lists[len(lists)-1].Payload.([]models.OnlineUser)
	assert.NotContains(t, online, models.OnlineUser{UserID: "u1"})
}

func TestHub_TypingRelayedToOppositeRoom(t *testing.T) {
	h := chathub.New(100, 100, nil)
	user := newUserConn(h, "c1", "u1")
	admin := newAdminConn(h, "c2")

	h.Typing(user, true)

	typed := admin.received(models.EventUserTyping)
	if assert.Len(t, typed, 1) {
		payload := typed[0].Payload.(models.TypingPayload)
		assert.Equal(t, "u1", payload.UserID)
		assert.True(t, payload.IsTyping)
	}

	h.AdminTyping(admin, "u1", true)

	typed = user.received(models.EventAdminTyping)
	if assert.Len(t, typed, 1) {
		assert.True(t, typed[0].Payload.(models.TypingPayload).IsTyping)
	}
}

type fakeMailer struct {
	mu    sync.Mutex
	calls []string
}

func (m *fakeMailer) NotifyOfflineMessage(userID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, userID+":"+message)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestHub_OfflineAdminTriggersMailer(t *testing.T) {
	mailer := &fakeMailer{}
	h := chathub.New(100, 100, mailer)
	user := newUserConn(h, "c1", "u1")

	h.UserMessage(user, "anyone there?")

	assert.Eventually(t, func() bool { return mailer.count() == 1 }, time.Second, 10*time.Millisecond)

	// with an admin online the mailer stays quiet
	newAdminConn(h, "c2")
	h.UserMessage(user, "hello again")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, mailer.count())
}
