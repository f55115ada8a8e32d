package models

import (
	"encoding/json"
	"time"
)

// Realtime event names, client to hub
const (
	EventJoinUserRoom  = "join-user-room"
	EventJoinAdminRoom = "join-admin-room"
	EventUserMessage   = "user-message"
	EventAdminMessage  = "admin-message"
	EventTyping        = "typing"
	EventAdminTyping   = "admin-typing"
)

// Realtime event names, hub to client
const (
	EventNewUserMessage  = "new-user-message"
	EventNewAdminMessage = "new-admin-message"
	EventUserTyping      = "user-typing"
	EventOnlineUsers     = "online-users"
	EventMessageSent     = "message-sent"
)

// Envelope is the wire frame used on the raw websocket transport. The event
// name discriminates which payload struct Data decodes into.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomPayload is accepted for wire compatibility only; the hub derives
// room membership from the authenticated handshake identity, never from
// this field.
type JoinRoomPayload struct {
	UserID string `json:"userId,omitempty"`
}

// UserMessagePayload carries a message from an end user to the admin room
type UserMessagePayload struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// AdminMessagePayload carries a support reply addressed to one user room
type AdminMessagePayload struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// TypingPayload is the transient typing hint, relayed last-write-wins
type TypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// NewUserMessagePayload is fanned out to the admin room
type NewUserMessagePayload struct {
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAdminMessagePayload is fanned out to a single user room
type NewAdminMessagePayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageSentPayload acknowledges a send to the sender only
type MessageSentPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OnlineUser is one entry in the online-users broadcast
type OnlineUser struct {
	UserID string `json:"userId"`
}
