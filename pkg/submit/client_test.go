package submit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gabrielmiguelok/optoconsent/pkg/consent"
)

func samplePayload() consent.Payload {
	yes := true
	return consent.Payload{
		Name:          "Jane Citizen",
		Email:         "jane@example.com",
		DrawSignature: "data:image/png;base64,AAAA",
		FormType:      consent.KindAdult,
		Consent: consent.Flags{
			ResearchConsent: true,
			ContactConsent:  &yes,
			StudentConsent:  false,
		},
	}
}

func TestClient_Success(t *testing.T) {
	var calls atomic.Int32
	var got consent.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %q", ct)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("Expected a request id")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/post")
	if err := c.Send(context.Background(), samplePayload()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected one POST, got %d", calls.Load())
	}
	if diff := cmp.Diff(samplePayload(), got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_ServerMessage(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"message field", http.StatusInternalServerError, `{"message":"Server error"}`, "Server error"},
		{"error field", http.StatusBadRequest, `{"error":"Missing signature"}`, "Missing signature"},
		{"message wins", http.StatusBadRequest, `{"message":"First","error":"Second"}`, "First"},
		{"empty json", http.StatusBadGateway, `{}`, DefaultMessage},
		{"not json", http.StatusServiceUnavailable, `<html>down</html>`, DefaultMessage},
		{"empty body", http.StatusInternalServerError, ``, DefaultMessage},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			err := NewClient(srv.URL).Send(context.Background(), samplePayload())

			var se *Error
			if !errors.As(err, &se) {
				t.Fatalf("Expected *Error, got %v", err)
			}
			if se.Status != tc.status {
				t.Errorf("Expected status %d, got %d", tc.status, se.Status)
			}
			if se.UserMessage() != tc.want {
				t.Errorf("Expected message %q, got %q", tc.want, se.UserMessage())
			}
			if got := consent.UserMessage(err); got != tc.want {
				t.Errorf("consent.UserMessage = %q, want %q", got, tc.want)
			}
			if calls.Load() != 1 {
				t.Errorf("Failures must not be retried, got %d calls", calls.Load())
			}
		})
	}
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient(url).Send(context.Background(), samplePayload())

	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if se.Status != 0 {
		t.Errorf("Expected no status, got %d", se.Status)
	}
	if se.UserMessage() != DefaultMessage {
		t.Errorf("Expected generic message, got %q", se.UserMessage())
	}
	if se.Unwrap() == nil {
		t.Error("Expected the transport error to be wrapped")
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, WithTimeout(20*time.Millisecond))
	err := c.Send(context.Background(), samplePayload())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if consent.UserMessage(err) != DefaultMessage {
		t.Errorf("Expected generic message, got %q", consent.UserMessage(err))
	}
}

func TestClient_Options(t *testing.T) {
	hc := &http.Client{}
	c := NewClient("http://localhost:3030/post", WithHTTPClient(hc))
	if c.Endpoint() != "http://localhost:3030/post" {
		t.Errorf("Unexpected endpoint %q", c.Endpoint())
	}
	if c.http != hc {
		t.Error("WithHTTPClient not applied")
	}
	if c.timeout != DefaultTimeout {
		t.Errorf("Expected default timeout, got %s", c.timeout)
	}
	c.CloseIdleConnections()
}
