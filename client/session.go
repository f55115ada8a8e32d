package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/profitwave/support-chat-api/models"
)

// ConnState is the session's realtime connection state
type ConnState int

const (
	// StateDisconnected means no realtime transport is attached
	StateDisconnected ConnState = iota
	// StateConnecting means a dial attempt is in flight
	StateConnecting
	// StateConnected means events flow over the attached transport
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// redialDelay paces reconnect attempts in Run
const redialDelay = 5 * time.Second

// SessionConfig configures a user messaging session
type SessionConfig struct {
	// UserID is the authenticated user's id. An empty id means the visitor is
	// not signed in; sends are dropped with a log line.
	UserID string
	// REST is the store client used for history reads and send fallback
	REST *RESTClient
	// Bus receives newMessage and messagesRead notifications; may be nil
	Bus *Bus
	// PollInterval is how often an open chat reconciles against the store.
	// Defaults to 10s.
	PollInterval time.Duration
	// WelcomeText overrides the synthesized greeting
	WelcomeText string
	// Now is overridable for tests
	Now func() time.Time
}

// Session is the end-user side of the support chat. It keeps a local
// conversation view, sends over the realtime transport when one is attached
// and falls back to the REST store when not, and periodically reconciles the
// local view against the store while the chat panel is open.
type Session struct {
	cfg SessionConfig

	mu          sync.Mutex
	state       ConnState
	transport   Transport
	messages    []Message
	marked      map[string]bool
	adminTyping bool
	pollStop    chan struct{}
}

// NewSession creates a session. Call Attach or Run to wire a realtime
// transport; the session works degraded over REST alone without one.
func NewSession(cfg SessionConfig) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.WelcomeText == "" {
		cfg.WelcomeText = DefaultWelcomeText
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		cfg:    cfg,
		state:  StateDisconnected,
		marked: map[string]bool{},
	}
}

// Attach binds a connected transport to the session, registers the inbound
// event handlers and joins the user's room. Each new connection must be
// attached again; room membership does not survive a reconnect.
func (s *Session) Attach(t Transport) {
	s.mu.Lock()
	s.transport = t
	s.state = StateConnected
	s.mu.Unlock()

	t.On(models.EventNewAdminMessage, s.handleAdminMessage)
	t.On(models.EventAdminTyping, s.handleAdminTyping)
	t.On(models.EventMessageSent, s.handleMessageSent)

	if err := t.Emit(models.EventJoinUserRoom, models.JoinRoomPayload{UserID: s.cfg.UserID}); err != nil {
		zap.S().Warnw("failed to join chat room", "error", err)
	}
}

// Detach drops the transport; the session falls back to REST
func (s *Session) Detach() {
	s.mu.Lock()
	s.transport = nil
	s.state = StateDisconnected
	s.mu.Unlock()
}

// Run keeps the session attached, redialing with a fixed delay whenever the
// connection drops. It blocks until ctx is done.
func (s *Session) Run(ctx context.Context, dial func(context.Context) (*WSTransport, error)) {
	for {
		s.setState(StateConnecting)
		t, err := dial(ctx)
		if err != nil {
			s.setState(StateDisconnected)
			zap.S().Warnw("chat dial failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(redialDelay):
			}
			continue
		}

		closed := make(chan struct{})
		t.OnClose(func() { close(closed) })
		s.Attach(t)

		select {
		case <-ctx.Done():
			_ = t.Close()
			s.Detach()
			return
		case <-closed:
			s.Detach()
		}
	}
}

// OpenChat marks the chat panel open: loads history on first open, marks
// unread support replies read, and starts the reconciliation poll.
func (s *Session) OpenChat(ctx context.Context) {
	s.mu.Lock()
	if s.pollStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.pollStop = stop
	s.mu.Unlock()

	s.reconcile(ctx)

	go func() {
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				s.reconcile(rctx)
				cancel()
			}
		}
	}()
}

// CloseChat stops the reconciliation poll. The conversation view is kept.
func (s *Session) CloseChat() {
	s.mu.Lock()
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
	s.mu.Unlock()
}

// SendMessage appends the message optimistically and delivers it over the
// transport when connected, or through the REST store when not. An empty
// conversation is primed with the welcome greeting first.
func (s *Session) SendMessage(ctx context.Context, text string) {
	if text == "" {
		return
	}
	if s.cfg.UserID == "" {
		zap.S().Warn("chat send dropped, no authenticated user")
		return
	}

	now := s.cfg.Now().UTC()

	s.mu.Lock()
	if len(s.messages) == 0 {
		s.messages = append(s.messages, Message{
			ID:        welcomeMessageID,
			UserID:    s.cfg.UserID,
			Type:      models.MessageTypeAdmin,
			Body:      s.cfg.WelcomeText,
			Timestamp: now,
			Read:      true,
			Delivery:  DeliveryConfirmed,
		})
	}
	msg := Message{
		ID:        newTempID(),
		UserID:    s.cfg.UserID,
		Type:      models.MessageTypeUser,
		Body:      text,
		Timestamp: now,
		Delivery:  DeliveryPending,
	}
	s.messages = append(s.messages, msg)
	t := s.transport
	s.mu.Unlock()

	if t != nil && t.Connected() {
		err := t.Emit(models.EventUserMessage, models.UserMessagePayload{
			UserID:  s.cfg.UserID,
			Message: text,
		})
		if err != nil {
			zap.S().Errorw("failed to emit chat message", "error", err)
			s.setDelivery(msg.ID, DeliveryFailed)
		}
		return
	}

	stored, err := s.cfg.REST.Send(ctx, s.cfg.UserID, text)
	if err != nil {
		zap.S().Errorw("failed to send chat message over rest", "error", err)
		s.setDelivery(msg.ID, DeliveryFailed)
		return
	}
	s.replaceProvisional(msg.ID, fromStore(stored))
}

// SetTyping sends the transient typing hint; a no-op without a live transport
func (s *Session) SetTyping(isTyping bool) {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil || !t.Connected() {
		return
	}
	if err := t.Emit(models.EventTyping, models.TypingPayload{UserID: s.cfg.UserID, IsTyping: isTyping}); err != nil {
		zap.S().Debugw("failed to emit typing", "error", err)
	}
}

// Messages returns a copy of the current conversation view, oldest first
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// State returns the realtime connection state
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AdminTyping reports whether support is currently typing
func (s *Session) AdminTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminTyping
}

// reconcile replaces the local view with the merge of local and store state,
// then marks newly-seen support replies as read
func (s *Session) reconcile(ctx context.Context) {
	store, err := s.cfg.REST.History(ctx, s.cfg.UserID)
	if err != nil {
		zap.S().Warnw("failed to fetch chat history", "error", err)
		return
	}

	var toMark []string
	s.mu.Lock()
	s.messages = Merge(s.messages, store)
	for _, m := range store {
		id := m.ID.Hex()
		if m.Type == models.MessageTypeAdmin && !m.Read && !s.marked[id] {
			s.marked[id] = true
			toMark = append(toMark, id)
		}
	}
	s.mu.Unlock()

	if len(toMark) == 0 {
		return
	}
	for _, id := range toMark {
		go func(id string) {
			mctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.cfg.REST.MarkRead(mctx, s.cfg.UserID, id); err != nil {
				zap.S().Debugw("failed to mark chat message read", "error", err, "messageID", id)
			}
		}(id)
	}
	s.publish(EventBusMessagesRead, s.cfg.UserID)
}

func (s *Session) handleAdminMessage(data json.RawMessage) {
	var p models.NewAdminMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		zap.S().Debugw("malformed admin message event", "error", err)
		return
	}

	s.mu.Lock()
	s.messages = append(s.messages, Message{
		ID:        newTempID(),
		UserID:    s.cfg.UserID,
		Type:      models.MessageTypeAdmin,
		Body:      p.Message,
		Timestamp: p.Timestamp,
		Delivery:  DeliveryConfirmed,
	})
	s.adminTyping = false
	s.mu.Unlock()

	s.publish(EventBusNewMessage, s.cfg.UserID)
}

func (s *Session) handleAdminTyping(data json.RawMessage) {
	var p models.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	s.adminTyping = p.IsTyping
	s.mu.Unlock()
}

// handleMessageSent resolves the oldest pending send. Acks carry no message
// id, so ordering is assumed to match send order.
func (s *Session) handleMessageSent(data json.RawMessage) {
	var p models.MessageSentPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		m := &s.messages[i]
		if m.Type != models.MessageTypeUser || m.Delivery != DeliveryPending {
			continue
		}
		if p.Success {
			m.Delivery = DeliveryConfirmed
		} else {
			m.Delivery = DeliveryFailed
			zap.S().Warnw("chat message rejected", "error", p.Error)
		}
		return
	}
}

func (s *Session) setDelivery(id string, d DeliveryState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Delivery = d
			return
		}
	}
}

func (s *Session) replaceProvisional(id string, stored Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i] = stored
			return
		}
	}
}

func (s *Session) setState(st ConnState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) publish(event string, payload interface{}) {
	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(event, payload)
	}
}
