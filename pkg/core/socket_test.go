package core

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// MockTransport implements Transport for testing.
type MockTransport struct {
	connected bool
	messages  []Message
	mu        sync.Mutex
}

func NewMockTransport() *MockTransport {
	return &MockTransport{connected: true}
}

func (m *MockTransport) Send(msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrSocketClosed
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Message, len(m.messages))
	copy(result, m.messages)
	return result
}

func TestNewSocket(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())

	if socket.ID() != "test-id" {
		t.Errorf("expected ID 'test-id', got '%s'", socket.ID())
	}
	if socket.Topic() != "lv:test-id" {
		t.Errorf("expected topic 'lv:test-id', got '%s'", socket.Topic())
	}
	if !socket.IsConnected() {
		t.Error("expected socket to be connected")
	}
}

func TestSocket_Push(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	if err := socket.Push("announce", map[string]any{"message": "Step 2 of 6"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	messages := transport.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].Topic != "lv:test-id" || messages[0].Event != "announce" {
		t.Errorf("unexpected message %+v", messages[0])
	}
}

func TestSocket_Send_Closed(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())

	socket.Close()

	if err := socket.Send(Message{Event: "test"}); !errors.Is(err, ErrSocketClosed) {
		t.Errorf("expected ErrSocketClosed, got %v", err)
	}
	if socket.IsConnected() {
		t.Error("expected socket to be disconnected")
	}
}

func TestSocket_Send_TransportDown(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)
	transport.Close()

	if err := socket.Send(Message{Event: "test"}); !errors.Is(err, ErrSocketClosed) {
		t.Errorf("expected ErrSocketClosed, got %v", err)
	}
}

func TestSocket_Send_Concurrent(t *testing.T) {
	transport := NewMockTransport()
	socket := NewSocket("test-id", transport)

	const goroutines = 50
	const messagesPerGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < messagesPerGoroutine; j++ {
				socket.Send(Message{
					Event:   "test",
					Payload: map[string]any{"id": id, "msg": j},
				})
			}
		}(i)
	}

	wg.Wait()

	if got := len(transport.Messages()); got != goroutines*messagesPerGoroutine {
		t.Errorf("expected %d messages, got %d", goroutines*messagesPerGoroutine, got)
	}
}

func TestSocket_Info(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())

	if err := socket.Info("idle-warning"); err != nil {
		t.Fatalf("Info: %v", err)
	}

	select {
	case msg := <-socket.Infos():
		if msg != "idle-warning" {
			t.Errorf("unexpected info %v", msg)
		}
	default:
		t.Fatal("expected a queued info message")
	}
}

func TestSocket_InfoAfterClose(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())
	socket.Close()

	if err := socket.Info("late"); !errors.Is(err, ErrSocketClosed) {
		t.Errorf("expected ErrSocketClosed, got %v", err)
	}
}

func TestSocket_InfoUnblocksOnClose(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())
	for i := 0; i < infoBuffer; i++ {
		if err := socket.Info(i); err != nil {
			t.Fatalf("Info %d: %v", i, err)
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- socket.Info("blocked") }()

	time.Sleep(10 * time.Millisecond)
	socket.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrSocketClosed) {
			t.Errorf("expected ErrSocketClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Info stayed blocked after Close")
	}
}

func TestSocket_CloseIdempotent(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())

	if err := socket.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := socket.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	select {
	case <-socket.Done():
	default:
		t.Error("Done should be closed")
	}
}

func TestSocket_LastActivity_Concurrent(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())

	var wg sync.WaitGroup
	const goroutines = 20

	for i := 0; i < goroutines; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				socket.UpdateActivity()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = socket.LastActivity()
			}
		}()
	}

	wg.Wait()
}

func TestSocket_Metadata(t *testing.T) {
	socket := NewSocket("test-id", NewMockTransport())
	socket.SetMetadata("codec", "msgpack")

	if socket.GetMetadata("codec") != "msgpack" {
		t.Errorf("unexpected metadata %v", socket.GetMetadata("codec"))
	}
	if socket.GetMetadata("missing") != nil {
		t.Error("expected nil for missing key")
	}
}

func TestSocketManager_Add_Remove(t *testing.T) {
	sm := NewSocketManager()

	sm.Add(NewSocket("socket-1", NewMockTransport()))
	sm.Add(NewSocket("socket-2", NewMockTransport()))

	if sm.Count() != 2 {
		t.Errorf("expected count 2, got %d", sm.Count())
	}

	s, ok := sm.Get("socket-1")
	if !ok || s.ID() != "socket-1" {
		t.Error("expected to find socket-1")
	}

	sm.Remove("socket-1")

	if sm.Count() != 1 {
		t.Errorf("expected count 1, got %d", sm.Count())
	}
	if _, ok := sm.Get("socket-1"); ok {
		t.Error("expected socket-1 to be removed")
	}
}

func TestSocketManager_CloseAll(t *testing.T) {
	sm := NewSocketManager()
	a := NewSocket("a", NewMockTransport())
	b := NewSocket("b", NewMockTransport())
	sm.Add(a)
	sm.Add(b)

	sm.CloseAll()

	if a.IsConnected() || b.IsConnected() {
		t.Error("expected all sockets closed")
	}
}
