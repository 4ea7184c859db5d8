// Package protocol defines the messages exchanged between the kiosk page and
// its live session.
package protocol

import (
	"time"
)

// Events used on the wire. Anything else sent by the client is a component
// event.
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventHeartbeat = "heartbeat"
	EventRender    = "render"
)

// Reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Message is one frame on the live connection.
type Message struct {
	// Ref correlates a reply with its request.
	Ref string `json:"ref,omitempty" msgpack:"ref,omitempty"`

	// Topic is "lv:" followed by the socket id.
	Topic string `json:"topic" msgpack:"topic"`

	Event string `json:"event" msgpack:"event"`

	Payload map[string]any `json:"payload,omitempty" msgpack:"payload,omitempty"`

	// Timestamp in Unix milliseconds, set on server-originated messages.
	Timestamp int64 `json:"ts,omitempty" msgpack:"ts,omitempty"`

	JoinRef string `json:"join_ref,omitempty" msgpack:"join_ref,omitempty"`
}

// NewMessage creates a timestamped message.
func NewMessage(topic, event string, payload map[string]any) *Message {
	return &Message{
		Topic:     topic,
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithRef sets the correlation reference.
func (m *Message) WithRef(ref string) *Message {
	m.Ref = ref
	return m
}

// String returns a payload string, or "" when absent or of another type.
func (m *Message) String(key string) string {
	if v, ok := m.Payload[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns a payload bool, or false when absent or of another type.
func (m *Message) Bool(key string) bool {
	v, _ := m.Payload[key].(bool)
	return v
}

// Clone returns a copy with its own payload map.
func (m *Message) Clone() *Message {
	clone := *m
	if m.Payload != nil {
		clone.Payload = make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			clone.Payload[k] = v
		}
	}
	return &clone
}

// ReplyMessage creates a reply to the request identified by ref.
func ReplyMessage(ref, topic, status string, response map[string]any) *Message {
	return NewMessage(topic, EventReply, map[string]any{
		"status":   status,
		"response": response,
	}).WithRef(ref)
}

// OkReply creates a successful reply.
func OkReply(ref, topic string, response map[string]any) *Message {
	return ReplyMessage(ref, topic, StatusOK, response)
}

// ErrorReply creates an error reply carrying reason.
func ErrorReply(ref, topic, reason string) *Message {
	return ReplyMessage(ref, topic, StatusError, map[string]any{"reason": reason})
}

// RenderMessage carries a re-rendered view. Version increases per session so
// the client can drop out-of-order frames.
func RenderMessage(topic string, version uint64, html string) *Message {
	return NewMessage(topic, EventRender, map[string]any{
		"v":    version,
		"html": html,
	})
}
