package client

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/profitwave/support-chat-api/models"
)

// Conversation is one row in the admin console's conversation list
type Conversation struct {
	UserID          string
	Online          bool
	IsTyping        bool
	Unread          int64
	LastMessage     string
	LastMessageDate time.Time
}

// ConsoleConfig configures an admin console
type ConsoleConfig struct {
	// REST must be an admin-scoped store client
	REST *RESTClient
	// Bus receives newMessage notifications; may be nil
	Bus *Bus
	// Now is overridable for tests
	Now func() time.Time
}

// Console is the support-agent side of the chat. Unlike the user session it
// never polls; the conversation list is seeded once over REST and kept
// current entirely by realtime events.
type Console struct {
	cfg ConsoleConfig

	mu            sync.Mutex
	state         ConnState
	transport     Transport
	conversations map[string]*Conversation
	selected      string
	messages      []Message
}

// NewConsole creates an admin console
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Console{
		cfg:           cfg,
		state:         StateDisconnected,
		conversations: map[string]*Conversation{},
	}
}

// Attach binds a connected transport, registers handlers and joins the
// shared admin room
func (c *Console) Attach(t Transport) {
	c.mu.Lock()
	c.transport = t
	c.state = StateConnected
	c.mu.Unlock()

	t.On(models.EventNewUserMessage, c.handleUserMessage)
	t.On(models.EventUserTyping, c.handleUserTyping)
	t.On(models.EventOnlineUsers, c.handleOnlineUsers)
	t.On(models.EventMessageSent, c.handleMessageSent)

	if err := t.Emit(models.EventJoinAdminRoom, models.JoinRoomPayload{}); err != nil {
		zap.S().Warnw("failed to join admin room", "error", err)
	}
}

// Detach drops the transport
func (c *Console) Detach() {
	c.mu.Lock()
	c.transport = nil
	c.state = StateDisconnected
	c.mu.Unlock()
}

// Refresh seeds the conversation list from the store. Presence and typing
// flags are preserved across a refresh; they only exist in hub state.
func (c *Console) Refresh(ctx context.Context) error {
	summaries, err := c.cfg.REST.Conversations(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range summaries {
		conv := c.conversation(s.UserID)
		conv.LastMessage = s.LastMessage
		conv.LastMessageDate = s.LastMessageDate.Time()
		conv.Unread = s.Unread
	}
	return nil
}

// Select opens one conversation: loads its full history, clears its unread
// counter and marks the user's unread messages read.
func (c *Console) Select(ctx context.Context, userID string) error {
	store, err := c.cfg.REST.History(ctx, userID)
	if err != nil {
		return err
	}

	var toMark []string
	c.mu.Lock()
	c.selected = userID
	c.messages = Merge(nil, store)
	conv := c.conversation(userID)
	conv.Unread = 0
	for _, m := range store {
		if m.Type == models.MessageTypeUser && !m.Read {
			toMark = append(toMark, m.ID.Hex())
		}
	}
	c.mu.Unlock()

	for _, id := range toMark {
		go func(id string) {
			mctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.cfg.REST.MarkRead(mctx, userID, id); err != nil {
				zap.S().Debugw("failed to mark chat message read", "error", err, "messageID", id)
			}
		}(id)
	}
	return nil
}

// SendMessage delivers a support reply to one user, optimistically appending
// it to the open conversation. Falls back to the REST store when the
// transport is down.
func (c *Console) SendMessage(ctx context.Context, userID, text string) {
	if userID == "" || text == "" {
		return
	}
	now := c.cfg.Now().UTC()

	msg := Message{
		ID:        newTempID(),
		UserID:    userID,
		Type:      models.MessageTypeAdmin,
		Body:      text,
		Timestamp: now,
		Delivery:  DeliveryPending,
	}

	c.mu.Lock()
	if c.selected == userID {
		c.messages = append(c.messages, msg)
	}
	conv := c.conversation(userID)
	conv.LastMessage = text
	conv.LastMessageDate = now
	t := c.transport
	c.mu.Unlock()

	if t != nil && t.Connected() {
		err := t.Emit(models.EventAdminMessage, models.AdminMessagePayload{
			UserID:  userID,
			Message: text,
		})
		if err != nil {
			zap.S().Errorw("failed to emit admin reply", "error", err)
			c.setDelivery(msg.ID, DeliveryFailed)
		}
		return
	}

	stored, err := c.cfg.REST.Send(ctx, userID, text)
	if err != nil {
		zap.S().Errorw("failed to send admin reply over rest", "error", err)
		c.setDelivery(msg.ID, DeliveryFailed)
		return
	}
	c.replaceProvisional(msg.ID, fromStore(stored))
}

// SetTyping sends the typing hint toward one user's room
func (c *Console) SetTyping(userID string, isTyping bool) {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil || !t.Connected() {
		return
	}
	if err := t.Emit(models.EventAdminTyping, models.TypingPayload{UserID: userID, IsTyping: isTyping}); err != nil {
		zap.S().Debugw("failed to emit admin typing", "error", err)
	}
}

// Conversations returns the list snapshot, most recent activity first
func (c *Console) Conversations() []Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Conversation, 0, len(c.conversations))
	for _, conv := range c.conversations {
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageDate.After(out[j].LastMessageDate)
	})
	return out
}

// Messages returns a copy of the open conversation, oldest first
func (c *Console) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Selected returns the open conversation's user id
func (c *Console) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// State returns the realtime connection state
func (c *Console) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Console) handleUserMessage(data json.RawMessage) {
	var p models.NewUserMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		zap.S().Debugw("malformed user message event", "error", err)
		return
	}

	c.mu.Lock()
	conv := c.conversation(p.UserID)
	conv.LastMessage = p.Message
	conv.LastMessageDate = p.Timestamp
	conv.IsTyping = false
	if c.selected == p.UserID {
		c.messages = append(c.messages, Message{
			ID:        newTempID(),
			UserID:    p.UserID,
			Type:      models.MessageTypeUser,
			Body:      p.Message,
			Timestamp: p.Timestamp,
			Delivery:  DeliveryConfirmed,
		})
	} else {
		conv.Unread++
	}
	c.mu.Unlock()

	if c.cfg.Bus != nil {
		c.cfg.Bus.Publish(EventBusNewMessage, p.UserID)
	}
}

func (c *Console) handleUserTyping(data json.RawMessage) {
	var p models.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	c.mu.Lock()
	c.conversation(p.UserID).IsTyping = p.IsTyping
	c.mu.Unlock()
}

func (c *Console) handleOnlineUsers(data json.RawMessage) {
	var online []models.OnlineUser
	if err := json.Unmarshal(data, &online); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conv := range c.conversations {
		conv.Online = false
	}
	for _, u := range online {
		c.conversation(u.UserID).Online = true
	}
}

func (c *Console) handleMessageSent(data json.RawMessage) {
	var p models.MessageSentPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		m := &c.messages[i]
		if m.Type != models.MessageTypeAdmin || m.Delivery != DeliveryPending {
			continue
		}
		if p.Success {
			m.Delivery = DeliveryConfirmed
		} else {
			m.Delivery = DeliveryFailed
			zap.S().Warnw("admin reply rejected", "error", p.Error)
		}
		return
	}
}

// conversation returns the row for a user, creating it when missing. Callers
// must hold c.mu.
func (c *Console) conversation(userID string) *Conversation {
	conv, ok := c.conversations[userID]
	if !ok {
		conv = &Conversation{UserID: userID}
		c.conversations[userID] = conv
	}
	return conv
}

func (c *Console) setDelivery(id string, d DeliveryState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].Delivery = d
			return
		}
	}
}

func (c *Console) replaceProvisional(id string, stored Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i] = stored
			return
		}
	}
}
