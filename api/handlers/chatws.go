package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/profitwave/support-chat-api/api"
	"github.com/profitwave/support-chat-api/api/chathub"
	"github.com/profitwave/support-chat-api/models"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn adapts one raw websocket to the hub's Conn interface. Writes are
// serialized; gorilla allows only one concurrent writer.
type wsConn struct {
	id       string
	identity chathub.Identity

	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) ID() string                 { return c.id }
func (c *wsConn) Identity() chathub.Identity { return c.identity }

func (c *wsConn) Emit(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		zap.S().Errorw("failed to marshal event payload", "event", event, "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(models.Envelope{Event: event, Data: data}); err != nil {
		zap.S().Debugw("websocket write failed", "connId", c.id, "event", event, "error", err)
	}
}

// ChatWebSocket is the envelope-framed websocket adapter to the hub, the
// transport the Go client libraries speak. It carries the exact same events
// as the socket.io adapter and either can be removed without the other.
type ChatWebSocket struct {
	Hub    *chathub.Hub
	Issuer *api.SocketTokenIssuer
}

// HandleWebSocket upgrades a chat connection, binds the handshake identity
// and pumps inbound envelopes into the hub until the peer goes away
func (h ChatWebSocket) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.Issuer.Verify(r.URL.Query().Get("token"))
	if err != nil {
		zap.S().Warnw("rejected chat websocket handshake", "error", err)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Errorw("chat websocket upgrade failed", "error", err)
		return
	}

	wrapped := &wsConn{id: uuid.New().String(), identity: identity, conn: conn}
	h.Hub.Connect(wrapped)
	defer func() {
		h.Hub.Disconnect(wrapped)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			zap.S().Debugw("dropping malformed envelope", "connId", wrapped.id, "error", err)
			continue
		}
		h.dispatch(wrapped, env)
	}
}

func (h ChatWebSocket) dispatch(c *wsConn, env models.Envelope) {
	switch env.Event {
	case models.EventJoinUserRoom:
		h.Hub.JoinUserRoom(c)
	case models.EventJoinAdminRoom:
		h.Hub.JoinAdminRoom(c)
	case models.EventUserMessage:
		var p models.UserMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.Emit(models.EventMessageSent, models.MessageSentPayload{Success: false, Error: "malformed payload"})
			return
		}
		h.Hub.UserMessage(c, p.Message)
	case models.EventAdminMessage:
		var p models.AdminMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.Emit(models.EventMessageSent, models.MessageSentPayload{Success: false, Error: "malformed payload"})
			return
		}
		h.Hub.AdminMessage(c, p.UserID, p.Message)
	case models.EventTyping:
		var p models.TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		h.Hub.Typing(c, p.IsTyping)
	case models.EventAdminTyping:
		var p models.TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		h.Hub.AdminTyping(c, p.UserID, p.IsTyping)
	default:
		zap.S().Debugw("dropping unknown event", "connId", c.id, "event", env.Event)
	}
}
