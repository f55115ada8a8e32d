package handlers

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/profitwave/support-chat-api/api"
)

var notificationUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NotificationHub pushes badge refresh hints (new message, message read) to
// connected dashboards over a plain websocket. It is a side channel: losing
// a hint only delays a badge until the next fetch.
type NotificationHub struct {
	Issuer *api.SocketTokenIssuer

	mu     sync.Mutex
	users  map[string]*websocket.Conn // userId -> dashboard conn
	admins map[string]*websocket.Conn // conn remote addr -> admin dashboard conn
}

// NewNotificationHub creates the hub backing /ws/notifications
func NewNotificationHub(issuer *api.SocketTokenIssuer) *NotificationHub {
	return &NotificationHub{
		Issuer: issuer,
		users:  make(map[string]*websocket.Conn),
		admins: make(map[string]*websocket.Conn),
	}
}

// HandleWebSocket upgrades a dashboard connection. Identity comes from the
// handshake token, not from query-supplied ids.
func (h *NotificationHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.Issuer.Verify(r.URL.Query().Get("token"))
	if err != nil {
		zap.S().Warnw("rejected notification socket", "error", err)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := notificationUpgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Errorw("notification websocket upgrade failed", "error", err)
		return
	}

	key := conn.RemoteAddr().String()
	h.mu.Lock()
	if identity.Admin {
		h.admins[key] = conn
	} else {
		h.users[identity.UserID] = conn
	}
	h.mu.Unlock()
	zap.S().Debugw("dashboard connected to notifications", "userId", identity.UserID, "admin", identity.Admin)

	// drain until the peer goes away
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if identity.Admin {
		delete(h.admins, key)
	} else if h.users[identity.UserID] == conn {
		delete(h.users, identity.UserID)
	}
	h.mu.Unlock()
	conn.Close()
}

// Notify pushes an event to the conversation owner's dashboard and to every
// admin dashboard. Failed writes drop the connection.
func (h *NotificationHub) Notify(userID, event string, data map[string]interface{}) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	frame := map[string]interface{}{
		"event": event,
		"data":  data,
	}

	if conn, ok := h.users[userID]; ok {
		if err := conn.WriteJSON(frame); err != nil {
			zap.S().Debugw("dropping dead notification socket", "userId", userID, "error", err)
			delete(h.users, userID)
			conn.Close()
		}
	}

	for key, conn := range h.admins {
		if err := conn.WriteJSON(frame); err != nil {
			zap.S().Debugw("dropping dead admin notification socket", "error", err)
			delete(h.admins, key)
			conn.Close()
		}
	}
}
