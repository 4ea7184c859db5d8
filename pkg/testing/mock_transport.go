package testing

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/optoconsent/pkg/core"
)

// MockTransport implements core.Transport and records every message the
// server pushes.
type MockTransport struct {
	ID        string
	connected bool
	sent      []core.Message
	err       error

	mu sync.Mutex
}

// NewMockTransport creates a connected mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		ID:        "test-socket-" + uuid.New().String()[:8],
		connected: true,
	}
}

// Send records a sent message.
func (mt *MockTransport) Send(msg core.Message) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.err != nil {
		return mt.err
	}
	if !mt.connected {
		return core.ErrSocketClosed
	}
	mt.sent = append(mt.sent, msg)
	return nil
}

// Close marks the transport as disconnected.
func (mt *MockTransport) Close() error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.connected = false
	return nil
}

// IsConnected returns the connection status.
func (mt *MockTransport) IsConnected() bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.connected
}

// SetError makes every following Send fail with err. A nil err clears it.
func (mt *MockTransport) SetError(err error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.err = err
}

// Sent returns a copy of every recorded message.
func (mt *MockTransport) Sent() []core.Message {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	out := make([]core.Message, len(mt.sent))
	copy(out, mt.sent)
	return out
}

// Events returns the payloads of the recorded messages named event, oldest
// first.
func (mt *MockTransport) Events(event string) []map[string]any {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	var out []map[string]any
	for _, msg := range mt.sent {
		if msg.Event == event {
			out = append(out, msg.Payload)
		}
	}
	return out
}

// Last returns the payload of the newest message named event.
func (mt *MockTransport) Last(event string) (map[string]any, bool) {
	events := mt.Events(event)
	if len(events) == 0 {
		return nil, false
	}
	return events[len(events)-1], true
}

// Reset forgets the recorded messages.
func (mt *MockTransport) Reset() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.sent = nil
}
