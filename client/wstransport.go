package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/profitwave/support-chat-api/models"
)

// WSTransport is the websocket implementation of Transport. It speaks the
// same envelope frames the /ws/chat endpoint does.
type WSTransport struct {
	conn *websocket.Conn

	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	handlers  map[string][]func(data json.RawMessage)
	onClose   func()
}

// DialTransport connects to the chat websocket endpoint. baseURL is the API
// root (http or https scheme); token is a socket token from the
// /auth/socket-token endpoint.
func DialTransport(ctx context.Context, baseURL, token string) (*WSTransport, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/chat"
	u.RawQuery = "token=" + url.QueryEscape(token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chat websocket: %w", err)
	}

	t := &WSTransport{
		conn:      conn,
		connected: true,
		handlers:  map[string][]func(data json.RawMessage){},
	}
	go t.readLoop()
	return t, nil
}

// Connected reports whether the read loop is still alive
func (t *WSTransport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Emit sends one envelope frame
func (t *WSTransport) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(models.Envelope{Event: event, Data: data})
}

// On registers a handler for an inbound event
func (t *WSTransport) On(event string, handler func(data json.RawMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = append(t.handlers[event], handler)
}

// OnClose registers a callback invoked once when the connection drops
func (t *WSTransport) OnClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = fn
}

// Close tears the connection down
func (t *WSTransport) Close() error {
	return t.conn.Close()
}

func (t *WSTransport) readLoop() {
	defer t.drop()
	for {
		var env models.Envelope
		if err := t.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.S().Debugw("chat websocket closed", "error", err)
			}
			return
		}

		t.mu.RLock()
		handlers := t.handlers[env.Event]
		t.mu.RUnlock()
		for _, fn := range handlers {
			fn(env.Data)
		}
	}
}

func (t *WSTransport) drop() {
	t.mu.Lock()
	t.connected = false
	onClose := t.onClose
	t.onClose = nil
	t.mu.Unlock()

	_ = t.conn.Close()
	if onClose != nil {
		onClose()
	}
}
