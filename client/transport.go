package client

import "encoding/json"

// Transport is a realtime connection to the chat hub. The websocket transport
// in this package implements it; tests substitute fakes.
type Transport interface {
	// Connected reports whether the transport can currently deliver events
	Connected() bool
	// Emit sends an event with a JSON-encodable payload to the hub
	Emit(event string, payload interface{}) error
	// On registers a handler for an inbound event. Handlers receive the raw
	// payload and run on the transport's read goroutine.
	On(event string, handler func(data json.RawMessage))
	// Close tears the connection down
	Close() error
}
