package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	want := Config{
		HTTPAddr:        ":3000",
		BackendHost:     "localhost",
		BackendPort:     3030,
		BackendPath:     "/post",
		BackendScheme:   "http",
		SubmitTimeout:   30 * time.Second,
		IdleTimeout:     300 * time.Second,
		IdleGrace:       15 * time.Second,
		WSCodec:         "json",
		WSMaxMessage:    2 << 20,
		MaxSessions:     64,
		SessionTTL:      5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.BackendURL(); got != "http://localhost:3030/post" {
		t.Errorf("BackendURL = %q", got)
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"CONSENT_BACKEND_HOST":    "10.0.0.7",
		"CONSENT_BACKEND_PORT":    "8443",
		"CONSENT_BACKEND_SCHEME":  "https",
		"CONSENT_BACKEND_PATH":    "/api/consent",
		"CONSENT_IDLE_TIMEOUT":    "2m",
		"CONSENT_IDLE_GRACE":      "30s",
		"CONSENT_ALLOWED_ORIGINS": "https://a.example,https://b.example",
		"CONSENT_WS_CODEC":        "msgpack",
		"CONSENT_LOG_FORMAT":      "json",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if got := cfg.BackendURL(); got != "https://10.0.0.7:8443/api/consent" {
		t.Errorf("BackendURL = %q", got)
	}
	if cfg.IdleTimeout != 2*time.Minute || cfg.IdleGrace != 30*time.Second {
		t.Errorf("unexpected idle durations %v/%v", cfg.IdleTimeout, cfg.IdleGrace)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins); diff != "" {
		t.Errorf("origins mismatch (-want +got):\n%s", diff)
	}
	if cfg.WSCodec != "msgpack" {
		t.Errorf("WSCodec = %q", cfg.WSCodec)
	}
}

func TestBackendAddr_IPv6(t *testing.T) {
	cfg := Config{BackendHost: "::1", BackendPort: 3030, BackendScheme: "http", BackendPath: "/post"}
	if got := cfg.BackendURL(); got != "http://[::1]:3030/post" {
		t.Errorf("BackendURL = %q", got)
	}
}

func TestLoadFrom_ParseError(t *testing.T) {
	_, err := LoadFrom(map[string]string{"CONSENT_BACKEND_PORT": "not-a-port"})
	if err == nil || !strings.HasPrefix(err.Error(), "parse env:") {
		t.Errorf("expected parse env error, got %v", err)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"port range", map[string]string{"CONSENT_BACKEND_PORT": "70000"}},
		{"scheme", map[string]string{"CONSENT_BACKEND_SCHEME": "ftp"}},
		{"zero grace", map[string]string{"CONSENT_IDLE_GRACE": "0s"}},
		{"codec", map[string]string{"CONSENT_WS_CODEC": "xml"}},
		{"frame size", map[string]string{"CONSENT_WS_MAX_MESSAGE": "10"}},
		{"sessions", map[string]string{"CONSENT_MAX_SESSIONS": "0"}},
		{"log level", map[string]string{"CONSENT_LOG_LEVEL": "loud"}},
		{"log format", map[string]string{"CONSENT_LOG_FORMAT": "yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFrom(tt.vars); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
