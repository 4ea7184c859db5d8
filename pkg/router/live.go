package router

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gabrielmiguelok/optoconsent/pkg/core"
	"github.com/gabrielmiguelok/optoconsent/pkg/logging"
	"github.com/gabrielmiguelok/optoconsent/pkg/protocol"
	"github.com/gabrielmiguelok/optoconsent/pkg/transport"
)

// terminateTimeout bounds Terminate callbacks after the connection is gone.
const terminateTimeout = 5 * time.Second

// handleLive creates the HTTP handler for a live route.
func (r *Router) handleLive(route *LiveRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.baseCtx.Err() != nil {
			http.Error(w, ErrShuttingDown.Error(), http.StatusServiceUnavailable)
			return
		}
		if isWebSocketRequest(req) {
			r.handleWebSocket(w, req, route)
			return
		}
		r.renderLive(w, req, route)
	}
}

// renderLive serves the first paint. The component is mounted without a
// socket and discarded afterwards.
func (r *Router) renderLive(w http.ResponseWriter, req *http.Request, route *LiveRoute) {
	ctx := req.Context()
	params := extractParams(req)
	session := extractSession(req)

	component := route.Component()
	if err := component.Mount(ctx, params, session); err != nil {
		r.fail(w, req, fmt.Errorf("mount %s: %w", component.Name(), err))
		return
	}

	var buf bytes.Buffer
	if err := render(ctx, component, &buf); err != nil {
		r.fail(w, req, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

// handleWebSocket upgrades the request and starts the session loop.
func (r *Router) handleWebSocket(w http.ResponseWriter, req *http.Request, route *LiveRoute) {
	codec, err := r.codecs.Lookup(req.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws := transport.NewWebSocketTransport(r.transportConfig, r.wsConfig, codec)
	ws.SetLogger(r.logger)
	if err := ws.Upgrade(w, req); err != nil {
		// Upgrade has already written the response.
		r.logger.Warn("WebSocket upgrade failed",
			logging.String("path", req.URL.Path),
			logging.String("origin", req.Header.Get("Origin")),
			logging.Err(err),
		)
		return
	}

	socket := core.NewSocket(uuid.NewString(), newTransportAdapter(ws))
	socket.SetMetadata("codec", codec.Name())

	component := route.Component()
	if bc, ok := component.(interface{ SetSocket(*core.Socket) }); ok {
		bc.SetSocket(socket)
	}

	params := extractParams(req)
	session := extractSession(req)

	lv := NewLiveViewSession(socket, component, params, session)
	lv.Transport = ws
	lv.Route = route.Path

	if evicted := r.sessions.Add(lv); evicted != nil {
		r.logger.Warn("Session limit reached, closing oldest",
			logging.Session(evicted.ID),
			logging.Int("limit", r.sessions.Capacity()),
		)
		evicted.close(core.TerminateTimeout)
	}
	r.sockets.Add(socket)

	log := r.logger.With(logging.Session(socket.ID()), logging.String("component", component.Name()))
	log.Info("Live session opened", logging.Any("codec", socket.GetMetadata("codec")), logging.String("path", route.Path))

	// The websocket outlives the HTTP request, so the loop runs on the
	// router's context instead of req.Context().
	ctx := logging.ContextWithLogger(r.baseCtx, log)

	r.loops.Add(1)
	go r.run(ctx, lv)
}

// run owns the component for the lifetime of the connection. Client events,
// infos and termination are all handled here, one at a time.
func (r *Router) run(ctx context.Context, lv *LiveViewSession) {
	defer r.loops.Done()

	log := logging.L(ctx)
	reason := core.TerminateNormal

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Live session panicked",
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())),
			)
			reason = core.TerminateError
		}
		r.finish(ctx, lv, reason)
	}()

	recv := lv.Transport.Receive()
	infos := lv.Socket.Infos()

	for {
		select {
		case msg := <-recv:
			lv.UpdateActivity()
			if done := r.handleMessage(ctx, lv, msg); done {
				return
			}

		case info := <-infos:
			if !lv.IsMounted() {
				continue
			}
			if err := lv.Component.HandleInfo(ctx, info); err != nil {
				log.Warn("Info handling failed", logging.Err(err), logging.String("info", fmt.Sprintf("%T", info)))
			}
			r.pushRender(ctx, lv)

		case <-lv.Transport.CloseChan():
			reason = lv.closeReason()
			return

		case <-ctx.Done():
			reason = core.TerminateShutdown
			return
		}
	}
}

// handleMessage processes one client frame. It reports whether the session
// should end.
func (r *Router) handleMessage(ctx context.Context, lv *LiveViewSession, msg *protocol.Message) bool {
	log := logging.L(ctx)

	switch msg.Event {
	case protocol.EventHeartbeat:
		r.send(ctx, lv, protocol.OkReply(msg.Ref, lv.Socket.Topic(), nil))
		return false

	case protocol.EventJoin:
		if !lv.IsMounted() {
			if err := lv.Component.Mount(ctx, lv.Params, lv.Session); err != nil {
				log.Error("Mount failed", logging.Err(err))
				r.send(ctx, lv, protocol.ErrorReply(msg.Ref, lv.Socket.Topic(), "mount failed"))
				return true
			}
			lv.SetMounted(true)
		}

		html, hash, err := renderString(ctx, lv.Component)
		if err != nil {
			log.Error("Render failed", logging.Err(err))
			r.send(ctx, lv, protocol.ErrorReply(msg.Ref, lv.Socket.Topic(), "render failed"))
			return true
		}
		version, _ := lv.nextRender(hash, true)
		r.send(ctx, lv, protocol.OkReply(msg.Ref, lv.Socket.Topic(), map[string]any{
			"html": html,
			"v":    version,
		}))
		log.Debug("Joined", logging.String("ref", msg.Ref))
		return false

	case protocol.EventLeave:
		return true
	}

	if !lv.IsMounted() {
		r.send(ctx, lv, protocol.ErrorReply(msg.Ref, lv.Socket.Topic(), ErrNotJoined.Error()))
		return false
	}

	payload := msg.Payload
	if payload == nil {
		payload = make(map[string]any)
	}

	if err := lv.Component.HandleEvent(ctx, msg.Event, payload); err != nil {
		log.Debug("Event rejected", logging.String("event", msg.Event), logging.Err(err))
		r.send(ctx, lv, protocol.ErrorReply(msg.Ref, lv.Socket.Topic(), err.Error()))
	}
	r.pushRender(ctx, lv)
	return false
}

// pushRender sends the component's HTML when it differs from the last one
// the client received.
func (r *Router) pushRender(ctx context.Context, lv *LiveViewSession) {
	html, hash, err := renderString(ctx, lv.Component)
	if err != nil {
		logging.L(ctx).Error("Render failed", logging.Err(err))
		return
	}
	version, changed := lv.nextRender(hash, false)
	if !changed {
		return
	}
	r.send(ctx, lv, protocol.RenderMessage(lv.Socket.Topic(), version, html))
}

func (r *Router) send(ctx context.Context, lv *LiveViewSession, msg *protocol.Message) {
	if err := lv.Transport.Send(msg); err != nil {
		logging.L(ctx).Debug("Send failed", logging.String("event", msg.Event), logging.Err(err))
	}
}

// finish terminates the component and forgets the session.
func (r *Router) finish(ctx context.Context, lv *LiveViewSession, reason core.TerminateReason) {
	log := logging.L(ctx)

	if lv.IsMounted() {
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminateTimeout)
		if err := lv.Component.Terminate(tctx, reason); err != nil {
			log.Warn("Terminate failed", logging.Err(err))
		}
		cancel()
	}

	r.sessions.Remove(lv.ID)
	r.sockets.Remove(lv.ID)
	lv.Socket.Close()

	log.Info("Live session closed",
		logging.String("reason", reason.String()),
		logging.Any("codec", lv.Socket.GetMetadata("codec")),
		logging.Duration("duration", time.Since(lv.CreatedAt)),
	)
}

func render(ctx context.Context, component core.Component, buf *bytes.Buffer) error {
	renderer := component.Render(ctx)
	if renderer == nil {
		return ErrNilRenderer
	}
	if err := renderer.Render(ctx, buf); err != nil {
		return fmt.Errorf("render %s: %w", component.Name(), err)
	}
	return nil
}

func renderString(ctx context.Context, component core.Component) (string, uint64, error) {
	var buf bytes.Buffer
	if err := render(ctx, component, &buf); err != nil {
		return "", 0, err
	}
	h := fnv.New64a()
	h.Write(buf.Bytes())
	return buf.String(), h.Sum64(), nil
}

// extractParams merges query values with route variables, the latter
// taking precedence.
func extractParams(req *http.Request) core.Params {
	params := make(core.Params)
	for key, values := range req.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	for key, value := range mux.Vars(req) {
		params[key] = value
	}
	return params
}

func extractSession(req *http.Request) core.Session {
	session := core.Session{
		"remote_addr": req.RemoteAddr,
		"user_agent":  req.UserAgent(),
	}
	if id := req.Header.Get(logging.RequestIDHeader); id != "" {
		session["request_id"] = id
	}
	return session
}

func isWebSocketRequest(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(req.Header.Get("Connection")), "upgrade")
}
