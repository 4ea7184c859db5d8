// Package transport carries protocol messages between the kiosk page and its
// live session over a WebSocket.
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gabrielmiguelok/optoconsent/pkg/protocol"
)

// Common transport errors.
var (
	ErrNotConnected     = errors.New("transport not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendTimeout      = errors.New("send timeout")
	ErrTransportFull    = errors.New("transport buffer full")
)

// Transport is a bidirectional message stream for one live session.
type Transport interface {
	// Send queues a message for the client.
	Send(msg *protocol.Message) error

	// Receive returns a channel of decoded client messages.
	Receive() <-chan *protocol.Message

	// CloseChan is closed once the transport shuts down.
	CloseChan() <-chan struct{}

	Close() error
	IsConnected() bool
}

// TransportConfig holds common transport configuration.
type TransportConfig struct {
	// ReadTimeout is the maximum time to wait for a client frame. The kiosk
	// page sends heartbeats well within it.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for a write.
	WriteTimeout time.Duration

	// PingInterval is how often to send protocol-level pings.
	PingInterval time.Duration

	// MaxMessageSize bounds a single frame. Drawn signatures arrive as PNG
	// data URLs, so this is generous.
	MaxMessageSize int64

	// SendBufferSize is the size of the send channel buffer.
	SendBufferSize int

	// ReceiveBufferSize is the size of the receive channel buffer.
	ReceiveBufferSize int
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() *TransportConfig {
	return &TransportConfig{
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    2 << 20, // 2MB
		SendBufferSize:    64,
		ReceiveBufferSize: 64,
	}
}

// BaseTransport provides the channels and connection flag shared by
// transports.
type BaseTransport struct {
	config    *TransportConfig
	connected bool
	sendCh    chan *protocol.Message
	recvCh    chan *protocol.Message
	closeCh   chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewBaseTransport creates a new base transport.
func NewBaseTransport(config *TransportConfig) *BaseTransport {
	if config == nil {
		config = DefaultTransportConfig()
	}
	return &BaseTransport{
		config:  config,
		sendCh:  make(chan *protocol.Message, config.SendBufferSize),
		recvCh:  make(chan *protocol.Message, config.ReceiveBufferSize),
		closeCh: make(chan struct{}),
	}
}

// Config returns the transport configuration.
func (t *BaseTransport) Config() *TransportConfig {
	return t.config
}

// IsConnected returns the connection status.
func (t *BaseTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// SetConnected updates the connection status.
func (t *BaseTransport) SetConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = connected
}

// Receive returns the receive channel.
func (t *BaseTransport) Receive() <-chan *protocol.Message {
	return t.recvCh
}

// CloseChan returns the close channel.
func (t *BaseTransport) CloseChan() <-chan struct{} {
	return t.closeCh
}

// Close marks the transport closed. It is idempotent.
func (t *BaseTransport) Close() error {
	t.closeOnce.Do(func() {
		t.SetConnected(false)
		close(t.closeCh)
	})
	return nil
}

// PushMessage delivers a decoded client message to the receive channel.
func (t *BaseTransport) PushMessage(msg *protocol.Message) error {
	select {
	case <-t.closeCh:
		return ErrConnectionClosed
	default:
	}
	select {
	case t.recvCh <- msg:
		return nil
	case <-t.closeCh:
		return ErrConnectionClosed
	default:
		return ErrTransportFull
	}
}
