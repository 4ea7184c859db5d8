// Package shutdown runs ordered cleanup hooks when the kiosk server stops.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/gabrielmiguelok/optoconsent/pkg/logging"
)

// Common shutdown errors.
var (
	ErrShutdownTimeout = errors.New("shutdown timed out")
	ErrAlreadyClosed   = errors.New("shutdown handler already closed")
)

// Hook priorities. Lower runs earlier.
const (
	PriorityFirst = 0

	// PriorityHTTP stops accepting requests and upgrades.
	PriorityHTTP = 100

	// PrioritySessions terminates live kiosk sessions, cancelling their
	// idle timers.
	PrioritySessions = 200

	// PrioritySubmit releases backend connections.
	PrioritySubmit = 300

	PriorityLast = 1000
)

// Hook represents a shutdown hook.
type Hook struct {
	// Name identifies the hook for logging.
	Name string

	// Priority determines execution order (lower = earlier).
	Priority int

	Fn func(ctx context.Context) error
}

// Config configures the shutdown handler.
type Config struct {
	// Timeout bounds the whole shutdown, all hooks included.
	Timeout time.Duration

	// Signals are the OS signals to listen for.
	Signals []os.Signal

	Logger logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		Signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
		Logger:  logging.NopLogger{},
	}
}

// Handler manages graceful shutdown.
type Handler struct {
	config *Config
	hooks  []Hook
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// NewHandler creates a new shutdown handler.
func NewHandler(config *Config) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = logging.NopLogger{}
	}

	return &Handler{
		config: config,
		hooks:  make([]Hook, 0),
		done:   make(chan struct{}),
	}
}

// Register adds a shutdown hook.
func (h *Handler) Register(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// RegisterFunc registers fn as a hook.
func (h *Handler) RegisterFunc(name string, priority int, fn func(ctx context.Context) error) {
	h.Register(Hook{
		Name:     name,
		Priority: priority,
		Fn:       fn,
	})
}

// Wait blocks until a signal arrives or ctx is done, then shuts down.
func (h *Handler) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, h.config.Signals...)
	defer stop()

	select {
	case <-sigCtx.Done():
	case <-h.done:
		return nil
	}

	h.config.Logger.Info("Shutdown requested", logging.String("cause", context.Cause(sigCtx).Error()))
	return h.Shutdown()
}

// Shutdown runs every hook in priority order. A failing hook does not stop
// the ones after it; the timeout does.
func (h *Handler) Shutdown() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrAlreadyClosed
	}
	h.closed = true
	close(h.done)

	hooks := make([]Hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].Priority < hooks[j].Priority
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	log := h.config.Logger
	var errs []error
	for _, hook := range hooks {
		start := time.Now()
		err := hook.Fn(ctx)
		if err != nil {
			log.Error("Shutdown hook failed", logging.String("hook", hook.Name), logging.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", hook.Name, err))
		} else {
			log.Debug("Shutdown hook done", logging.String("hook", hook.Name), logging.Duration("duration", time.Since(start)))
		}

		if ctx.Err() != nil {
			return errors.Join(append(errs, ErrShutdownTimeout)...)
		}
	}

	return errors.Join(errs...)
}

// Done returns a channel that's closed when shutdown starts.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// IsClosed reports whether Shutdown has run.
func (h *Handler) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// HTTPServerHook creates a hook for shutting down an HTTP server.
func HTTPServerHook(name string, shutdownFn func(ctx context.Context) error) Hook {
	return Hook{
		Name:     name,
		Priority: PriorityHTTP,
		Fn:       shutdownFn,
	}
}

// CloseableHook creates a hook for anything with a Close() method.
func CloseableHook(name string, priority int, closer interface{ Close() error }) Hook {
	return Hook{
		Name:     name,
		Priority: priority,
		Fn: func(ctx context.Context) error {
			return closer.Close()
		},
	}
}

// TimeoutHook wraps a hook function with its own timeout.
func TimeoutHook(hook Hook, timeout time.Duration) Hook {
	return Hook{
		Name:     hook.Name,
		Priority: hook.Priority,
		Fn: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return hook.Fn(ctx)
		},
	}
}
