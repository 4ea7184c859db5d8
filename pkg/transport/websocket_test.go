package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gabrielmiguelok/optoconsent/pkg/protocol"
)

func TestWebSocket_OriginValidation(t *testing.T) {
	tests := []struct {
		name          string
		wsConfig      *WebSocketConfig
		origin        string
		host          string
		expectAllowed bool
	}{
		{
			name:          "same-origin allowed",
			wsConfig:      &WebSocketConfig{},
			origin:        "https://kiosk.clinic.example",
			host:          "kiosk.clinic.example",
			expectAllowed: true,
		},
		{
			name:          "no origin allowed",
			wsConfig:      &WebSocketConfig{},
			origin:        "",
			host:          "kiosk.clinic.example",
			expectAllowed: true,
		},
		{
			name:          "explicit origin allowed",
			wsConfig:      &WebSocketConfig{AllowedOrigins: []string{"https://reception.clinic.example"}},
			origin:        "https://reception.clinic.example",
			host:          "kiosk.clinic.example",
			expectAllowed: true,
		},
		{
			name:          "origin not in list blocked",
			wsConfig:      &WebSocketConfig{AllowedOrigins: []string{"https://reception.clinic.example"}},
			origin:        "https://attacker.example",
			host:          "kiosk.clinic.example",
			expectAllowed: false,
		},
		{
			name:          "wildcard allows all",
			wsConfig:      &WebSocketConfig{AllowedOrigins: []string{"*"}},
			origin:        "https://any-site.example",
			host:          "kiosk.clinic.example",
			expectAllowed: true,
		},
		{
			name:          "insecure dev mode allows all",
			wsConfig:      &WebSocketConfig{InsecureDevMode: true},
			origin:        "https://attacker.example",
			host:          "kiosk.clinic.example",
			expectAllowed: true,
		},
		{
			name:          "cross-origin blocked by default",
			wsConfig:      &WebSocketConfig{},
			origin:        "https://other-site.example",
			host:          "kiosk.clinic.example",
			expectAllowed: false,
		},
		{
			name:          "garbage origin blocked",
			wsConfig:      &WebSocketConfig{},
			origin:        "not a url",
			host:          "kiosk.clinic.example",
			expectAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewWebSocketTransport(nil, tt.wsConfig, nil)

			allowed := transport.isOriginAllowed(tt.origin, tt.host)

			if allowed != tt.expectAllowed {
				t.Errorf("isOriginAllowed(%q, %q) = %v, want %v",
					tt.origin, tt.host, allowed, tt.expectAllowed)
			}
		})
	}
}

func TestWebSocket_RejectsInvalidOrigin(t *testing.T) {
	transport := NewWebSocketTransport(nil, &WebSocketConfig{
		AllowedOrigins: []string{"https://reception.clinic.example"},
	}, nil)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://attacker.example")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Host = "kiosk.clinic.example"

	w := httptest.NewRecorder()

	err := transport.Upgrade(w, req)

	if !errors.Is(err, ErrOriginNotAllowed) {
		t.Errorf("Expected ErrOriginNotAllowed, got %v", err)
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestWebSocket_OriginPatterns(t *testing.T) {
	transport := NewWebSocketTransport(nil, &WebSocketConfig{
		AllowedOrigins: []string{"https://reception.clinic.example", "*", "::bad"},
	}, nil)

	got := transport.originPatterns()
	if len(got) != 2 || got[0] != "reception.clinic.example" || got[1] != "*" {
		t.Errorf("Unexpected patterns %v", got)
	}
}

func TestDefaultWebSocketConfig(t *testing.T) {
	config := DefaultWebSocketConfig()

	if config.InsecureDevMode {
		t.Error("InsecureDevMode should be false by default")
	}
	if config.AllowedOrigins != nil {
		t.Error("AllowedOrigins should be nil by default (same-origin only)")
	}
}

// echoServer upgrades each request and sends every received message back.
func echoServer(t *testing.T, codec protocol.Codec) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server := NewWebSocketTransport(nil, nil, codec)
		if err := server.Upgrade(w, r); err != nil {
			t.Errorf("Upgrade: %v", err)
			return
		}
		go func() {
			for {
				select {
				case msg := <-server.Receive():
					_ = server.Send(msg)
				case <-server.CloseChan():
					return
				}
			}
		}()
	}))
}

func TestWebSocket_Roundtrip(t *testing.T) {
	for _, codec := range []protocol.Codec{protocol.NewJSONCodec(), protocol.NewMsgPackCodec()} {
		t.Run(codec.Name(), func(t *testing.T) {
			srv := echoServer(t, codec)
			defer srv.Close()

			client := NewWebSocketTransport(nil, nil, codec)
			client.SetURL("ws" + strings.TrimPrefix(srv.URL, "http"))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := client.Connect(ctx); err != nil {
				t.Fatalf("Connect: %v", err)
			}
			defer client.Close()

			sent := &protocol.Message{
				Ref:     "7",
				Topic:   "lv:abc",
				Event:   "set",
				Payload: map[string]any{"field": "name", "value": "Jane"},
			}
			if err := client.Send(sent); err != nil {
				t.Fatalf("Send: %v", err)
			}

			select {
			case got := <-client.Receive():
				if got.Ref != "7" || got.Event != "set" || got.String("value") != "Jane" {
					t.Errorf("Unexpected echo %+v", got)
				}
			case <-ctx.Done():
				t.Fatal("Timed out waiting for echo")
			}
		})
	}
}

func TestWebSocket_SendAfterClose(t *testing.T) {
	srv := echoServer(t, nil)
	defer srv.Close()

	client := NewWebSocketTransport(nil, nil, nil)
	client.SetURL("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	client.Close()
	client.Close()

	if err := client.Send(&protocol.Message{Event: "next"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	select {
	case <-client.CloseChan():
	default:
		t.Error("CloseChan should be closed")
	}
}

func TestWebSocket_ConnectWithoutURL(t *testing.T) {
	client := NewWebSocketTransport(nil, nil, nil)
	if err := client.Connect(context.Background()); err == nil {
		t.Error("Expected error without URL")
	}
}

func TestBaseTransport_PushMessage(t *testing.T) {
	bt := NewBaseTransport(&TransportConfig{ReceiveBufferSize: 1})

	if err := bt.PushMessage(&protocol.Message{Event: "next"}); err != nil {
		t.Fatalf("PushMessage: %v", err)
	}
	if err := bt.PushMessage(&protocol.Message{Event: "back"}); !errors.Is(err, ErrTransportFull) {
		t.Errorf("Expected ErrTransportFull, got %v", err)
	}

	bt.Close()
	if err := bt.PushMessage(&protocol.Message{Event: "back"}); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}
