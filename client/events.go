package client

import "sync"

// Bus event names published by sessions and consoles
const (
	EventBusNewMessage   = "newMessage"
	EventBusMessagesRead = "messagesRead"
)

// Bus is a small in-process publish/subscribe hub. Sessions publish on it so
// that badge counters and other UI concerns can react without being wired
// into the session directly.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]func(payload interface{})
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{handlers: map[string][]func(payload interface{}){}}
}

// Subscribe registers a handler for an event. Handlers run synchronously on
// the publishing goroutine and must not block.
func (b *Bus) Subscribe(event string, fn func(payload interface{})) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], fn)
}

// Publish delivers the payload to every handler subscribed to the event
func (b *Bus) Publish(event string, payload interface{}) {
	b.mu.RLock()
	handlers := b.handlers[event]
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(payload)
	}
}
