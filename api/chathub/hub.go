// Package chathub is the realtime relay between end-user chat sessions and
// the admin support consoles. It owns room membership and ephemeral presence
// only; message durability belongs to the chat database, written by the REST
// endpoints. If the process restarts, clients rejoin and lose nothing but
// presence.
package chathub

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/profitwave/support-chat-api/models"
)

// AdminRoom is the shared room all support consoles join
const AdminRoom = "admin"

// UserRoom returns the room name for one end user's conversation
func UserRoom(userID string) string {
	return "user:" + userID
}

// Identity is the verified identity bound to a connection at handshake time.
// Room routing trusts this struct and never a caller-supplied payload field.
type Identity struct {
	UserID string
	Admin  bool
}

// Conn is a single realtime connection. Implementations must not block in
// Emit; a slow consumer is the transport adapter's problem.
type Conn interface {
	ID() string
	Identity() Identity
	Emit(event string, payload interface{})
}

// Mailer notifies the support inbox when a user message arrives while no
// admin console is connected. Best effort.
type Mailer interface {
	NotifyOfflineMessage(userID, message string) error
}

type presenceEntry struct {
	userID   string
	isTyping bool
}

// Hub multiplexes connections into one room per end user plus the shared
// admin room, and relays message/typing/presence events between them.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[string]Conn // room -> conn id -> conn
	conns    map[string]Conn
	presence map[string]*presenceEntry // conn id -> entry, end users only
	limiters map[string]*rate.Limiter

	rps    rate.Limit
	burst  int
	mailer Mailer
}

// New creates a hub with per-connection message rate limits. mailer may be
// nil to disable offline-admin notifications.
func New(rps float64, burst int, mailer Mailer) *Hub {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &Hub{
		rooms:    make(map[string]map[string]Conn),
		conns:    make(map[string]Conn),
		presence: make(map[string]*presenceEntry),
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		mailer:   mailer,
	}
}

// Connect registers a connection. End-user connections become visible in the
// online-user list broadcast to the admin room.
func (h *Hub) Connect(c Conn) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	h.limiters[c.ID()] = rate.NewLimiter(h.rps, h.burst)
	if !c.Identity().Admin {
		h.presence[c.ID()] = &presenceEntry{userID: c.Identity().UserID}
	}
	online := h.onlineUsersLocked()
	h.mu.Unlock()

	connectionsActive.Inc()
	zap.S().Debugw("chat client connected", "connId", c.ID(), "userId", c.Identity().UserID, "admin", c.Identity().Admin)
	h.broadcast(AdminRoom, models.EventOnlineUsers, online)
}

// Disconnect drops a connection from every room and destroys its presence.
func (h *Hub) Disconnect(c Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.ID()]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.ID())
	delete(h.presence, c.ID())
	delete(h.limiters, c.ID())
	for name, room := range h.rooms {
		delete(room, c.ID())
		if len(room) == 0 {
			delete(h.rooms, name)
		}
	}
	online := h.onlineUsersLocked()
	h.mu.Unlock()

	connectionsActive.Dec()
	zap.S().Debugw("chat client disconnected", "connId", c.ID())
	h.broadcast(AdminRoom, models.EventOnlineUsers, online)
}

// JoinUserRoom places an end-user connection into the room for its own
// conversation. The room is derived from the handshake identity. Idempotent.
func (h *Hub) JoinUserRoom(c Conn) bool {
	id := c.Identity()
	if id.Admin || id.UserID == "" {
		zap.S().Warnw("refused user-room join", "connId", c.ID(), "admin", id.Admin)
		return false
	}
	h.join(UserRoom(id.UserID), c)
	return true
}

// JoinAdminRoom places an admin console into the shared admin room. Any
// number of consoles may join. Non-admin identities are refused.
func (h *Hub) JoinAdminRoom(c Conn) bool {
	if !c.Identity().Admin {
		zap.S().Warnw("refused admin-room join", "connId", c.ID(), "userId", c.Identity().UserID)
		return false
	}
	h.join(AdminRoom, c)
	return true
}

// UserMessage relays a user message to the admin room and acknowledges the
// sender. The hub does not persist the message.
func (h *Hub) UserMessage(c Conn, text string) {
	id := c.Identity()
	if id.Admin || id.UserID == "" {
		c.Emit(models.EventMessageSent, models.MessageSentPayload{Success: false, Error: "not a user connection"})
		return
	}
	if text == "" {
		c.Emit(models.EventMessageSent, models.MessageSentPayload{Success: false, Error: "empty message"})
		return
	}
	if !h.allow(c) {
		c.Emit(models.EventMessageSent, models.MessageSentPayload{Success: false, Error: "rate limited"})
		return
	}

	messagesRelayed.WithLabelValues("user").Inc()
	adminsOnline := h.roomSize(AdminRoom) > 0
	h.broadcast(AdminRoom, models.EventNewUserMessage, models.NewUserMessagePayload{
		UserID:    id.UserID,
		Message:   text,
		Timestamp: time.Now().UTC(),
	})
	c.Emit(models.EventMessageSent, models.MessageSentPayload{Success: true})

	if !adminsOnline && h.mailer != nil {
		go func() {
			if err := h.mailer.NotifyOfflineMessage(id.UserID, text); err != nil {
				zap.S().Errorw("failed to send offline support notification", "error", err, "userId", id.UserID)
			}
		}()
	}
}

// AdminMessage relays a support reply to exactly the addressed user's room
// and acknowledges the sender.
func (h *Hub) AdminMessage(c Conn, userID, text string) {
	if !c.Identity().Admin {
		c.Emit(models.EventMessageSent, models.MessageSentPayload{Success: false, Error: "not an admin connection"})
		return
	}
	if userID == "" || text == "" {
		c.Emit(models.EventMessageSent, models.MessageSentPayload{Success: false, Error: "missing userId or message"})
		return
	}
	if !h.allow(c) {
		c.Emit(models.EventMessageSent, models.MessageSentPayload{Success: false, Error: "rate limited"})
		return
	}

	messagesRelayed.WithLabelValues("admin").Inc()
	h.broadcast(UserRoom(userID), models.EventNewAdminMessage, models.NewAdminMessagePayload{
		Message:   text,
		Timestamp: time.Now().UTC(),
	})
	c.Emit(models.EventMessageSent, models.MessageSentPayload{Success: true})
}

// Typing relays an end user's typing hint to the admin room. Last write
// wins; there is no ack and no persistence.
func (h *Hub) Typing(c Conn, isTyping bool) {
	id := c.Identity()
	if id.Admin || id.UserID == "" {
		return
	}

	h.mu.Lock()
	if p, ok := h.presence[c.ID()]; ok {
		p.isTyping = isTyping
	}
	h.mu.Unlock()

	typingRelayed.Inc()
	h.broadcast(AdminRoom, models.EventUserTyping, models.TypingPayload{UserID: id.UserID, IsTyping: isTyping})
}

// AdminTyping relays a support operator's typing hint to one user room.
func (h *Hub) AdminTyping(c Conn, userID string, isTyping bool) {
	if !c.Identity().Admin || userID == "" {
		return
	}
	typingRelayed.Inc()
	h.broadcast(UserRoom(userID), models.EventAdminTyping, models.TypingPayload{UserID: userID, IsTyping: isTyping})
}

// OnlineUsers returns the distinct end users currently connected.
func (h *Hub) OnlineUsers() []models.OnlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineUsersLocked()
}

func (h *Hub) onlineUsersLocked() []models.OnlineUser {
	seen := make(map[string]bool, len(h.presence))
	online := make([]models.OnlineUser, 0, len(h.presence))
	for _, p := range h.presence {
		if seen[p.userID] {
			continue
		}
		seen[p.userID] = true
		online = append(online, models.OnlineUser{UserID: p.userID})
	}
	return online
}

func (h *Hub) join(name string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.ID()]; !ok {
		// joins only make sense for registered connections
		return
	}
	room, ok := h.rooms[name]
	if !ok {
		room = make(map[string]Conn)
		h.rooms[name] = room
	}
	room[c.ID()] = c
}

func (h *Hub) broadcast(name, event string, payload interface{}) {
	h.mu.RLock()
	members := make([]Conn, 0, len(h.rooms[name]))
	for _, c := range h.rooms[name] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.Emit(event, payload)
	}
}

func (h *Hub) roomSize(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[name])
}

func (h *Hub) allow(c Conn) bool {
	h.mu.Lock()
	l, ok := h.limiters[c.ID()]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.limiters[c.ID()] = l
	}
	h.mu.Unlock()
	return l.Allow()
}
