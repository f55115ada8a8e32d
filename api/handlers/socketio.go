package handlers

import (
	"sync"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"go.uber.org/zap"

	"github.com/profitwave/support-chat-api/api"
	"github.com/profitwave/support-chat-api/api/chathub"
	"github.com/profitwave/support-chat-api/models"
)

// socketIOConn adapts a socket.io connection to the hub's Conn interface
type socketIOConn struct {
	conn     socketio.Conn
	identity chathub.Identity
}

func (c *socketIOConn) ID() string                 { return c.conn.ID() }
func (c *socketIOConn) Identity() chathub.Identity { return c.identity }

func (c *socketIOConn) Emit(event string, payload interface{}) {
	c.conn.Emit(event, payload)
}

// SocketIO is the browser-facing realtime adapter. It authenticates the
// handshake token once per connection and forwards typed events to the hub;
// the hub never sees unauthenticated connections.
type SocketIO struct {
	Hub    *chathub.Hub
	Issuer *api.SocketTokenIssuer

	server *socketio.Server

	mu    sync.Mutex
	conns map[string]*socketIOConn
}

// NewSocketIO wires a socket.io server to the hub
func NewSocketIO(hub *chathub.Hub, issuer *api.SocketTokenIssuer) *SocketIO {
	s := &SocketIO{
		Hub:    hub,
		Issuer: issuer,
		conns:  make(map[string]*socketIOConn),
	}
	s.initialize()
	return s
}

// Server returns the underlying socket.io server for mounting on the router
func (s *SocketIO) Server() *socketio.Server {
	return s.server
}

func (s *SocketIO) initialize() {
	s.server = socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			polling.Default,
			websocket.Default,
		},
	})

	s.server.OnConnect("/", func(c socketio.Conn) error {
		u := c.URL()
		identity, err := s.Issuer.Verify(u.Query().Get("token"))
		if err != nil {
			zap.S().Warnw("rejected socket.io handshake", "connId", c.ID(), "error", err)
			return err
		}

		wrapped := &socketIOConn{conn: c, identity: identity}
		s.mu.Lock()
		s.conns[c.ID()] = wrapped
		s.mu.Unlock()

		s.Hub.Connect(wrapped)
		return nil
	})

	s.server.OnError("/", func(c socketio.Conn, e error) {
		zap.S().Errorw("socket.io error", "error", e)
	})

	s.server.OnDisconnect("/", func(c socketio.Conn, reason string) {
		if wrapped := s.take(c.ID()); wrapped != nil {
			s.Hub.Disconnect(wrapped)
		}
		zap.S().Debugw("socket.io client disconnected", "connId", c.ID(), "reason", reason)
	})

	// join payloads are accepted for wire compatibility; the room comes from
	// the handshake identity
	s.server.OnEvent("/", models.EventJoinUserRoom, func(c socketio.Conn, _ models.JoinRoomPayload) {
		if wrapped := s.get(c.ID()); wrapped != nil {
			s.Hub.JoinUserRoom(wrapped)
		}
	})

	s.server.OnEvent("/", models.EventJoinAdminRoom, func(c socketio.Conn) {
		if wrapped := s.get(c.ID()); wrapped != nil {
			s.Hub.JoinAdminRoom(wrapped)
		}
	})

	s.server.OnEvent("/", models.EventUserMessage, func(c socketio.Conn, p models.UserMessagePayload) {
		if wrapped := s.get(c.ID()); wrapped != nil {
			s.Hub.UserMessage(wrapped, p.Message)
		}
	})

	s.server.OnEvent("/", models.EventAdminMessage, func(c socketio.Conn, p models.AdminMessagePayload) {
		if wrapped := s.get(c.ID()); wrapped != nil {
			s.Hub.AdminMessage(wrapped, p.UserID, p.Message)
		}
	})

	s.server.OnEvent("/", models.EventTyping, func(c socketio.Conn, p models.TypingPayload) {
		if wrapped := s.get(c.ID()); wrapped != nil {
			s.Hub.Typing(wrapped, p.IsTyping)
		}
	})

	s.server.OnEvent("/", models.EventAdminTyping, func(c socketio.Conn, p models.TypingPayload) {
		if wrapped := s.get(c.ID()); wrapped != nil {
			s.Hub.AdminTyping(wrapped, p.UserID, p.IsTyping)
		}
	})

	go func() {
		if err := s.server.Serve(); err != nil {
			zap.S().Errorw("socket.io server stopped", "error", err)
		}
	}()
}

// Close stops the socket.io server loop
func (s *SocketIO) Close() error {
	return s.server.Close()
}

func (s *SocketIO) get(id string) *socketIOConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[id]
}

func (s *SocketIO) take(id string) *socketIOConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conns[id]
	delete(s.conns, id)
	return c
}
