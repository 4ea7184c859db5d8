// Package config loads the kiosk server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/gabrielmiguelok/optoconsent/pkg/logging"
)

// Prefix is prepended to every variable name.
const Prefix = "CONSENT_"

// ErrInvalid reports a value that parsed but cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config is the server configuration.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":3000"`

	BackendHost   string        `env:"BACKEND_HOST"   envDefault:"localhost"`
	BackendPort   int           `env:"BACKEND_PORT"   envDefault:"3030"`
	BackendPath   string        `env:"BACKEND_PATH"   envDefault:"/post"`
	BackendScheme string        `env:"BACKEND_SCHEME" envDefault:"http"`
	SubmitTimeout time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"30s"`

	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"300s"`
	IdleGrace   time.Duration `env:"IDLE_GRACE"   envDefault:"15s"`

	// AllowedOrigins are extra websocket origins besides the page's own.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	WSCodec        string   `env:"WS_CODEC"        envDefault:"json"`
	// WSMaxMessage bounds one websocket frame. Drawn signatures are the
	// largest messages.
	WSMaxMessage int64 `env:"WS_MAX_MESSAGE" envDefault:"2097152"`

	MaxSessions int           `env:"MAX_SESSIONS" envDefault:"64"`
	SessionTTL  time.Duration `env:"SESSION_TTL"  envDefault:"5m"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// AuditLog is a file audit entries are appended to. Empty disables it.
	AuditLog string `env:"AUDIT_LOG"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return load(env.Options{Prefix: Prefix})
}

// LoadFrom reads the configuration from vars instead of the process
// environment. Keys include the prefix.
func LoadFrom(vars map[string]string) (Config, error) {
	return load(env.Options{Prefix: Prefix, Environment: vars})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env cannot check on its own.
func (c Config) Validate() error {
	switch {
	case c.BackendHost == "":
		return fmt.Errorf("%w: %sBACKEND_HOST is empty", ErrInvalid, Prefix)
	case c.BackendPort < 1 || c.BackendPort > 65535:
		return fmt.Errorf("%w: %sBACKEND_PORT %d out of range", ErrInvalid, Prefix, c.BackendPort)
	case c.BackendScheme != "http" && c.BackendScheme != "https":
		return fmt.Errorf("%w: %sBACKEND_SCHEME %q", ErrInvalid, Prefix, c.BackendScheme)
	case c.IdleTimeout <= 0 || c.IdleGrace <= 0:
		return fmt.Errorf("%w: idle durations must be positive", ErrInvalid)
	case c.SubmitTimeout <= 0:
		return fmt.Errorf("%w: %sSUBMIT_TIMEOUT must be positive", ErrInvalid, Prefix)
	case c.WSCodec != "json" && c.WSCodec != "msgpack":
		return fmt.Errorf("%w: %sWS_CODEC %q", ErrInvalid, Prefix, c.WSCodec)
	case c.WSMaxMessage < 1024:
		return fmt.Errorf("%w: %sWS_MAX_MESSAGE %d is below 1024", ErrInvalid, Prefix, c.WSMaxMessage)
	case c.MaxSessions < 1 || c.SessionTTL <= 0:
		return fmt.Errorf("%w: session limits must be positive", ErrInvalid)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: %sLOG_FORMAT %q", ErrInvalid, Prefix, c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// BackendAddr is the backend's host:port.
func (c Config) BackendAddr() string {
	return net.JoinHostPort(c.BackendHost, strconv.Itoa(c.BackendPort))
}

// BackendURL is the endpoint submissions are posted to.
func (c Config) BackendURL() string {
	u := url.URL{
		Scheme: c.BackendScheme,
		Host:   c.BackendAddr(),
		Path:   c.BackendPath,
	}
	return u.String()
}
