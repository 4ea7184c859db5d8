// Package app wires the kiosk server: configuration, the live routes for
// both form kinds, static assets, health and metrics endpoints, the audit
// trail and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gabrielmiguelok/optoconsent/client"
	"github.com/gabrielmiguelok/optoconsent/internal/config"
	"github.com/gabrielmiguelok/optoconsent/internal/kiosk"
	"github.com/gabrielmiguelok/optoconsent/pkg/audit"
	"github.com/gabrielmiguelok/optoconsent/pkg/consent"
	"github.com/gabrielmiguelok/optoconsent/pkg/health"
	"github.com/gabrielmiguelok/optoconsent/pkg/logging"
	"github.com/gabrielmiguelok/optoconsent/pkg/metrics"
	"github.com/gabrielmiguelok/optoconsent/pkg/protocol"
	"github.com/gabrielmiguelok/optoconsent/pkg/router"
	"github.com/gabrielmiguelok/optoconsent/pkg/security"
	"github.com/gabrielmiguelok/optoconsent/pkg/shutdown"
	"github.com/gabrielmiguelok/optoconsent/pkg/submit"
	"github.com/gabrielmiguelok/optoconsent/pkg/transport"
)

// Version is reported by the health endpoints.
var Version = "dev"

// Routes served by the kiosk.
const (
	PathAdult     = "/"
	PathChild     = "/child"
	PathLiveness  = "/healthz"
	PathReadiness = "/readyz"
	PathHealth    = "/health"
	PathMetrics   = "/metrics"
)

const (
	heapLimit       = 512 << 20
	cleanupInterval = time.Minute
)

// App is a configured kiosk server.
type App struct {
	cfg    config.Config
	log    logging.Logger
	router *router.Router
	health *health.Checker
	submit *submit.Client
	sender consent.Sender

	metrics *metrics.Kiosk
	audit   audit.Logger
}

// Option customises an App, mostly for tests.
type Option func(*App)

// WithSender replaces the HTTP submit client.
func WithSender(s consent.Sender) Option {
	return func(a *App) { a.sender = s }
}

// New builds the server from cfg.
func New(cfg config.Config, log logging.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NopLogger{}
	}

	a := &App{cfg: cfg, log: log, metrics: metrics.New("consent"), audit: audit.NopLogger{}}
	a.submit = submit.NewClient(cfg.BackendURL(),
		submit.WithTimeout(cfg.SubmitTimeout),
		submit.WithLogger(log),
	)
	a.sender = a.submit
	for _, opt := range opts {
		opt(a)
	}

	if cfg.AuditLog != "" {
		al, err := audit.NewFileLogger(cfg.AuditLog, func(err error) {
			log.Error("Audit entry lost", logging.Err(err))
		})
		if err != nil {
			return nil, fmt.Errorf("audit log: %w", err)
		}
		a.audit = al
	}

	codecs := protocol.NewCodecRegistry()
	if err := codecs.SetDefault(cfg.WSCodec); err != nil {
		return nil, fmt.Errorf("websocket codec: %w", err)
	}

	tc := transport.DefaultTransportConfig()
	tc.MaxMessageSize = cfg.WSMaxMessage

	a.router = router.New(
		router.WithLogger(log),
		router.WithCodecs(codecs),
		router.WithTransportConfig(tc),
		router.WithWebSocketConfig(&transport.WebSocketConfig{AllowedOrigins: cfg.AllowedOrigins}),
		router.WithSessionConfig(router.SessionManagerConfig{
			MaxSessions: cfg.MaxSessions,
			SessionTTL:  cfg.SessionTTL,
		}),
	)
	a.router.Use(
		router.Recovery(),
		security.SecureHeaders(),
		logging.RequestLogger(log),
		router.Compress(),
	)

	sanitizer := security.NewSanitizer()
	for path, kind := range map[string]consent.Kind{PathAdult: consent.KindAdult, PathChild: consent.KindChild} {
		form, err := consent.LoadForm(kind)
		if err != nil {
			return nil, err
		}
		a.router.Live(path, kiosk.NewFactory(kiosk.Deps{
			Form:        form,
			Sender:      a.sender,
			IdleTimeout: cfg.IdleTimeout,
			IdleGrace:   cfg.IdleGrace,
			Sanitizer:   sanitizer,
			Logger:      log,
			Metrics:     a.metrics,
			Audit:       a.audit,
		}))
	}
	a.router.PathPrefix(kiosk.AssetPrefix, http.StripPrefix(kiosk.AssetPrefix, client.Handler()))

	a.health = health.DefaultChecker(Version)
	a.health.AddCriticalCheck("backend", health.TCPCheck(cfg.BackendAddr()), 2*time.Second)
	a.health.AddCheck("sessions", health.SessionCapacityCheck(a.router.SessionManager()), time.Second)
	a.health.AddCheck("memory", health.MemoryCheck(heapLimit), time.Second)
	a.router.Handle(PathLiveness, a.health.LivenessHandler())
	a.router.Handle(PathReadiness, a.health.ReadinessHandler())
	a.router.Handle(PathHealth, a.health.HealthHandler())
	a.router.Handle(PathMetrics, a.metrics.Handler())

	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Metrics returns the server's metric set.
func (a *App) Metrics() *metrics.Kiosk {
	return a.metrics
}

// Router returns the live router.
func (a *App) Router() *router.Router {
	return a.router
}

// Run serves on the configured address until ctx ends or a termination
// signal arrives, then shuts down in order: HTTP, live sessions, backend
// connections.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.HTTPAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sd := shutdown.NewHandler(&shutdown.Config{
		Timeout: a.cfg.ShutdownTimeout,
		Signals: shutdown.DefaultConfig().Signals,
		Logger:  a.log,
	})
	sd.Register(shutdown.HTTPServerHook("http", srv.Shutdown))
	// Sessions get half the budget so the audit log is still flushed when a
	// component hangs in Terminate.
	sd.Register(shutdown.TimeoutHook(shutdown.Hook{
		Name:     "sessions",
		Priority: shutdown.PrioritySessions,
		Fn:       a.router.Shutdown,
	}, a.cfg.ShutdownTimeout/2))
	sd.RegisterFunc("submit-client", shutdown.PrioritySubmit, func(context.Context) error {
		a.submit.CloseIdleConnections()
		return nil
	})
	sd.Register(shutdown.CloseableHook("audit", shutdown.PriorityLast, a.audit))

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	a.router.StartCleanup(cleanupCtx, cleanupInterval)

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("Server starting",
			logging.String("addr", ln.Addr().String()),
			logging.String("backend", a.cfg.BackendURL()),
			logging.String("version", Version),
		)
		serveErr <- srv.Serve(ln)
	}()

	waitErr := make(chan error, 1)
	go func() { waitErr <- sd.Wait(ctx) }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return <-waitErr
		}
		_ = sd.Shutdown()
		return fmt.Errorf("serve: %w", err)
	case err := <-waitErr:
		a.log.Info("Server stopped")
		return err
	}
}
