package testing

import (
	"context"
	"sync"

	"github.com/gabrielmiguelok/optoconsent/pkg/consent"
)

// StubSender is a consent.Sender that records payloads instead of posting
// them. When Hold is set, Send blocks until Release is called or the
// context ends.
type StubSender struct {
	mu       sync.Mutex
	payloads []consent.Payload
	err      error
	hold     chan struct{}
	started  chan struct{}
}

// NewStubSender returns a sender that succeeds immediately.
func NewStubSender() *StubSender {
	return &StubSender{started: make(chan struct{}, 16)}
}

// Fail makes every following Send return err.
func (s *StubSender) Fail(err error) *StubSender {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Hold makes the next sends block until Release.
func (s *StubSender) Hold() *StubSender {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = make(chan struct{})
	return s
}

// Release unblocks held sends.
func (s *StubSender) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold != nil {
		close(s.hold)
		s.hold = nil
	}
}

// Started receives once per Send call, after the payload was recorded.
func (s *StubSender) Started() <-chan struct{} {
	return s.started
}

// Send records p.
func (s *StubSender) Send(ctx context.Context, p consent.Payload) error {
	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	hold := s.hold
	err := s.err
	s.mu.Unlock()

	select {
	case s.started <- struct{}{}:
	default:
	}

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Payloads returns every payload sent so far.
func (s *StubSender) Payloads() []consent.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]consent.Payload, len(s.payloads))
	copy(out, s.payloads)
	return out
}
