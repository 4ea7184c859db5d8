// Package audit records what happened to each consent form as JSON lines.
// Entries carry the session, form and outcome but never the patient's
// answers.
package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Event types.
const (
	EventSessionStarted  = "session_started"
	EventSessionEnded    = "session_ended"
	EventFormSubmitted   = "form_submitted"
	EventSubmitFailed    = "submission_failed"
	EventFormRestarted   = "form_restarted"
	EventIdleReset       = "idle_reset"
	EventValidationError = "validation_failed"
)

// Severity levels.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// Entry is one audit record.
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Event      string         `json:"event"`
	Severity   string         `json:"severity"`
	SessionID  string         `json:"session_id,omitempty"`
	Form       string         `json:"form,omitempty"`
	Step       int            `json:"step"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Logger stores audit entries.
type Logger interface {
	Log(e Entry)
	Close() error
}

// JSONLogger writes one JSON object per line.
type JSONLogger struct {
	mu      sync.Mutex
	encoder *json.Encoder
	writer  io.Writer
	now     func() time.Time
	onError func(error)
}

// NewJSONLogger creates a logger writing to w. Encoding failures are passed
// to onError when it is not nil.
func NewJSONLogger(w io.Writer, onError func(error)) *JSONLogger {
	return &JSONLogger{
		encoder: json.NewEncoder(w),
		writer:  w,
		now:     time.Now,
		onError: onError,
	}
}

// NewFileLogger appends to the file at path, creating it with owner-only
// permissions.
func NewFileLogger(path string, onError func(error)) (*JSONLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return NewJSONLogger(f, onError), nil
}

// Log writes e, filling in the timestamp and severity when unset.
func (l *JSONLogger) Log(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	if err := l.encoder.Encode(e); err != nil && l.onError != nil {
		l.onError(err)
	}
}

// Close closes the underlying writer if it is a Closer.
func (l *JSONLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if closer, ok := l.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// NopLogger discards entries.
type NopLogger struct{}

func (NopLogger) Log(Entry)    {}
func (NopLogger) Close() error { return nil }
