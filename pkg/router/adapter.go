package router

import (
	"github.com/gabrielmiguelok/optoconsent/pkg/core"
	"github.com/gabrielmiguelok/optoconsent/pkg/protocol"
	"github.com/gabrielmiguelok/optoconsent/pkg/transport"
)

// transportAdapter lets a core.Socket push through a wire transport.
type transportAdapter struct {
	t transport.Transport
}

func newTransportAdapter(t transport.Transport) *transportAdapter {
	return &transportAdapter{t: t}
}

func (a *transportAdapter) Send(msg core.Message) error {
	out := protocol.NewMessage(msg.Topic, msg.Event, msg.Payload)
	out.Ref = msg.Ref
	return a.t.Send(out)
}

func (a *transportAdapter) Close() error {
	return a.t.Close()
}

func (a *transportAdapter) IsConnected() bool {
	return a.t.IsConnected()
}
