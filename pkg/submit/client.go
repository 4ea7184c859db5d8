// Package submit delivers completed consent forms to the clinic backend.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/optoconsent/pkg/consent"
	"github.com/gabrielmiguelok/optoconsent/pkg/logging"
)

// DefaultMessage is reported when the backend gives no usable reason.
const DefaultMessage = consent.DefaultSubmitError

// DefaultTimeout bounds a single submission.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is read.
const maxErrorBody = 64 << 10

// Error is a failed submission.
type Error struct {
	// Status is the HTTP status, or 0 when no response arrived.
	Status int
	// Message is the text to show the user.
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("submit: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("submit: status %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the message shown on the review step.
func (e *Error) UserMessage() string { return e.Message }

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout bounds each Send. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Client posts payloads as JSON. Each Send is one request; there are no
// retries.
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
	logger   logging.Logger
}

// NewClient returns a client for endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{},
		timeout:  DefaultTimeout,
		logger:   logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL payloads are posted to.
func (c *Client) Endpoint() string { return c.endpoint }

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() { c.http.CloseIdleConnections() }

// Send posts p. Any 2xx status is success. Failures are returned as *Error
// carrying the backend's "message" or "error" field when it sent one.
func (c *Client) Send(ctx context.Context, p consent.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(logging.RequestIDHeader, requestID)

	log := c.logger.With(
		logging.String("request_id", requestID),
		logging.String("form_type", string(p.FormType)),
	)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("Submission failed", logging.Err(err), logging.Duration("elapsed", time.Since(start)))
		return &Error{Message: DefaultMessage, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		log.Info("Submission accepted",
			logging.Int("status", resp.StatusCode),
			logging.Duration("elapsed", time.Since(start)))
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &Error{
		Status:  resp.StatusCode,
		Message: messageFrom(data),
		Err:     errors.New(http.StatusText(resp.StatusCode)),
	}
	log.Warn("Submission rejected",
		logging.Int("status", resp.StatusCode),
		logging.String("message", e.Message),
		logging.Duration("elapsed", time.Since(start)))
	return e
}

// messageFrom picks the user-facing reason out of an error body.
func messageFrom(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return DefaultMessage
	}
	if body.Message != "" {
		return body.Message
	}
	if body.Error != "" {
		return body.Error
	}
	return DefaultMessage
}
