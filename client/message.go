// Package client holds the Go client libraries for the support chat: the
// end-user messaging session, the admin console, and the reconciliation
// merge both share. Either side talks to the hub over a realtime transport
// when available and falls back to the REST store endpoints when not.
package client

import (
	"time"

	"github.com/google/uuid"

	"github.com/profitwave/support-chat-api/models"
)

// DeliveryState tracks a locally-added message's confirmation status
type DeliveryState int

const (
	// DeliveryPending means the message has not been durably confirmed yet
	DeliveryPending DeliveryState = iota
	// DeliveryConfirmed means the store (or the hub ack) confirmed the message
	DeliveryConfirmed
	// DeliveryFailed means the send errored; no retry is attempted
	DeliveryFailed
)

// TempIDPrefix marks a provisional, client-assigned message id
const TempIDPrefix = "temp-"

// welcomeMessageID identifies the locally-synthesized greeting. It is never
// sent anywhere and never merged with server data.
const welcomeMessageID = "local-welcome"

// DefaultWelcomeText primes an empty conversation before the first send
const DefaultWelcomeText = "Hi! You're through to ProfitWave support. How can we help you today?"

// Message is one entry in a session's local conversation view
type Message struct {
	ID        string
	UserID    string
	Type      string // models.MessageTypeUser or models.MessageTypeAdmin
	Body      string
	Timestamp time.Time
	Read      bool
	Delivery  DeliveryState
}

// IsProvisional reports whether the message still carries a temporary id
func (m Message) IsProvisional() bool {
	return len(m.ID) >= len(TempIDPrefix) && m.ID[:len(TempIDPrefix)] == TempIDPrefix
}

func newTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// fromStore converts a persisted message into the local representation
func fromStore(m models.ChatMessage) Message {
	return Message{
		ID:        m.ID.Hex(),
		UserID:    m.UserID,
		Type:      m.Type,
		Body:      m.Message,
		Timestamp: m.MessageDate.Time(),
		Read:      m.Read,
		Delivery:  DeliveryConfirmed,
	}
}
