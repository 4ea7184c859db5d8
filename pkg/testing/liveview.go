// Package testing drives live components without a browser or a websocket:
// a mock transport records what the server pushes, a virtual clock stands in
// for timers and a stub sender replaces the backend.
package testing

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/gabrielmiguelok/optoconsent/pkg/core"
)

// LiveViewTest is a harness around one mounted component. Like the router,
// it calls the component from a single goroutine: the test's.
type LiveViewTest struct {
	t          testing.TB
	component  core.Component
	transport  *MockTransport
	socket     *core.Socket
	ctx        context.Context
	rendered   string
	terminated bool
}

type mountConfig struct {
	params   core.Params
	session  core.Session
	noSocket bool
}

// MountOption configures Mount.
type MountOption func(*mountConfig)

// WithParams sets the mount parameters.
func WithParams(params core.Params) MountOption {
	return func(c *mountConfig) { c.params = params }
}

// WithSession sets the session data.
func WithSession(session core.Session) MountOption {
	return func(c *mountConfig) { c.session = session }
}

// WithoutSocket mounts the component the way the plain HTTP render does.
func WithoutSocket() MountOption {
	return func(c *mountConfig) { c.noSocket = true }
}

// Mount mounts comp and renders it once. The component is terminated when
// the test ends.
func Mount(t testing.TB, comp core.Component, opts ...MountOption) *LiveViewTest {
	t.Helper()

	cfg := mountConfig{params: core.Params{}, session: core.Session{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	lvt := &LiveViewTest{
		t:         t,
		component: comp,
		transport: NewMockTransport(),
	}
	if !cfg.noSocket {
		lvt.socket = core.NewSocket(lvt.transport.ID, lvt.transport)
		if setter, ok := comp.(interface{ SetSocket(*core.Socket) }); ok {
			setter.SetSocket(lvt.socket)
		}
	}
	lvt.ctx = context.Background()

	if err := comp.Mount(lvt.ctx, cfg.params, cfg.session); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	lvt.render()

	t.Cleanup(func() { lvt.Terminate(core.TerminateNormal) })
	return lvt
}

// Event delivers a client event and re-renders. The component's error is
// returned; the render happens either way, as it does in the router.
func (lvt *LiveViewTest) Event(event string, payload map[string]any) error {
	lvt.t.Helper()
	err := lvt.component.HandleEvent(lvt.ctx, event, payload)
	lvt.render()
	return err
}

// Push delivers a client event and fails the test if the component rejects
// it.
func (lvt *LiveViewTest) Push(event string, payload map[string]any) *LiveViewTest {
	lvt.t.Helper()
	if err := lvt.Event(event, payload); err != nil {
		lvt.t.Errorf("HandleEvent(%q) failed: %v", event, err)
	}
	return lvt
}

// SendInfo delivers msg to HandleInfo directly and re-renders.
func (lvt *LiveViewTest) SendInfo(msg any) *LiveViewTest {
	lvt.t.Helper()
	if err := lvt.component.HandleInfo(lvt.ctx, msg); err != nil {
		lvt.t.Errorf("HandleInfo failed: %v", err)
	}
	lvt.render()
	return lvt
}

// Drain handles every message already posted with Socket.Info and returns
// how many there were.
func (lvt *LiveViewTest) Drain() int {
	lvt.t.Helper()
	if lvt.socket == nil {
		return 0
	}
	n := 0
	for {
		select {
		case msg := <-lvt.socket.Infos():
			lvt.SendInfo(msg)
			n++
		default:
			return n
		}
	}
}

// Await waits up to timeout for one posted message and handles it.
func (lvt *LiveViewTest) Await(timeout time.Duration) any {
	lvt.t.Helper()
	if lvt.socket == nil {
		lvt.t.Fatalf("Await on a component mounted without a socket")
	}
	select {
	case msg := <-lvt.socket.Infos():
		lvt.SendInfo(msg)
		return msg
	case <-time.After(timeout):
		lvt.t.Fatalf("no info message within %v", timeout)
		return nil
	}
}

// Terminate ends the component once.
func (lvt *LiveViewTest) Terminate(reason core.TerminateReason) {
	if lvt.terminated {
		return
	}
	lvt.terminated = true
	if err := lvt.component.Terminate(lvt.ctx, reason); err != nil {
		lvt.t.Errorf("Terminate failed: %v", err)
	}
	if lvt.socket != nil {
		lvt.socket.Close()
	}
}

func (lvt *LiveViewTest) render() {
	lvt.t.Helper()
	var buf bytes.Buffer
	if err := lvt.component.Render(lvt.ctx).Render(lvt.ctx, &buf); err != nil {
		lvt.t.Fatalf("Render failed: %v", err)
	}
	lvt.rendered = buf.String()
}

// Refresh re-renders without delivering anything, as after a clock change.
func (lvt *LiveViewTest) Refresh() *LiveViewTest {
	lvt.t.Helper()
	lvt.render()
	return lvt
}

// Rendered returns the latest render.
func (lvt *LiveViewTest) Rendered() string {
	return lvt.rendered
}

// HTML returns assertions over the latest render.
func (lvt *LiveViewTest) HTML() *HTMLAssert {
	return NewHTMLAssert(lvt.t, lvt.rendered)
}

// Transport returns the mock transport.
func (lvt *LiveViewTest) Transport() *MockTransport {
	return lvt.transport
}

// Socket returns the socket, or nil when mounted WithoutSocket.
func (lvt *LiveViewTest) Socket() *core.Socket {
	return lvt.socket
}

// Component returns the component under test.
func (lvt *LiveViewTest) Component() core.Component {
	return lvt.component
}
