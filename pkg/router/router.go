// Package router serves live components over HTTP and websockets.
package router

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/gabrielmiguelok/optoconsent/pkg/core"
	"github.com/gabrielmiguelok/optoconsent/pkg/logging"
	"github.com/gabrielmiguelok/optoconsent/pkg/protocol"
	"github.com/gabrielmiguelok/optoconsent/pkg/transport"
)

// Common router errors.
var (
	ErrNilRenderer  = errors.New("component returned nil renderer")
	ErrNotJoined    = errors.New("event before join")
	ErrShuttingDown = errors.New("router is shutting down")
)

// Router handles HTTP routing for live components.
type Router struct {
	mux *mux.Router

	logger          logging.Logger
	codecs          *protocol.CodecRegistry
	transportConfig *transport.TransportConfig
	wsConfig        *transport.WebSocketConfig

	sessions *LiveViewSessionManager
	sockets  *core.SocketManager

	// baseCtx outlives each HTTP request and is canceled by Shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc
	loops   sync.WaitGroup
}

// LiveRoute defines a route that renders a live component.
type LiveRoute struct {
	// Path is the URL path pattern.
	Path string

	// Component creates a fresh component per connection.
	Component func() core.Component
}

// Middleware is a function that wraps an HTTP handler.
type Middleware = mux.MiddlewareFunc

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithCodecs sets the codecs a client may pick with ?codec=.
func WithCodecs(codecs *protocol.CodecRegistry) Option {
	return func(r *Router) {
		r.codecs = codecs
	}
}

// WithTransportConfig sets websocket timeouts and buffer sizes.
func WithTransportConfig(config *transport.TransportConfig) Option {
	return func(r *Router) {
		r.transportConfig = config
	}
}

// WithWebSocketConfig sets origin checking for websocket upgrades.
func WithWebSocketConfig(config *transport.WebSocketConfig) Option {
	return func(r *Router) {
		r.wsConfig = config
	}
}

// WithSessionConfig sets session limits.
func WithSessionConfig(config SessionManagerConfig) Option {
	return func(r *Router) {
		r.sessions = NewLiveViewSessionManager(config)
	}
}

// New creates a new router.
func New(opts ...Option) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		mux:             mux.NewRouter(),
		logger:          logging.DefaultLogger,
		codecs:          protocol.NewCodecRegistry(),
		transportConfig: transport.DefaultTransportConfig(),
		wsConfig:        transport.DefaultWebSocketConfig(),
		sessions:        NewLiveViewSessionManager(DefaultSessionManagerConfig()),
		sockets:         core.NewSocketManager(),
		baseCtx:         ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// fail logs err and answers 500.
func (r *Router) fail(w http.ResponseWriter, req *http.Request, err error) {
	logging.L(req.Context()).Error("Request failed",
		logging.String("path", req.URL.Path),
		logging.Err(err),
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Use adds middleware applied to every route.
func (r *Router) Use(mw ...Middleware) {
	r.mux.Use(mw...)
}

// SessionManager returns the session manager.
func (r *Router) SessionManager() *LiveViewSessionManager {
	return r.sessions
}

// SocketManager returns the socket manager.
func (r *Router) SocketManager() *core.SocketManager {
	return r.sockets
}

// Live registers a live route. A plain GET renders the component once; a
// websocket upgrade on the same path opens a live session.
func (r *Router) Live(path string, component func() core.Component) *mux.Route {
	route := &LiveRoute{Path: path, Component: component}
	return r.mux.HandleFunc(path, r.handleLive(route)).Methods(http.MethodGet)
}

// Handle registers a standard HTTP handler.
func (r *Router) Handle(path string, handler http.Handler) *mux.Route {
	return r.mux.Handle(path, handler)
}

// HandleFunc registers a standard HTTP handler function.
func (r *Router) HandleFunc(path string, handler http.HandlerFunc) *mux.Route {
	return r.mux.HandleFunc(path, handler)
}

// PathPrefix serves handler for every path under prefix.
func (r *Router) PathPrefix(prefix string, handler http.Handler) *mux.Route {
	return r.mux.PathPrefix(prefix).Handler(handler)
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// StartCleanup closes sessions that have been silent longer than the
// session TTL. It runs until ctx is done.
func (r *Router) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				expired := r.sessions.Expired(now)
				for _, s := range expired {
					s.close(core.TerminateTimeout)
				}
				if len(expired) > 0 {
					r.logger.Info("Closed inactive sessions", logging.Int("count", len(expired)))
				}
			}
		}
	}()
}

// Shutdown terminates every live session and waits for their loops to
// finish or ctx to expire.
func (r *Router) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.loops.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.sockets.CloseAll()
		return ctx.Err()
	}
}
