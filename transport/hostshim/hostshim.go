// Package hostshim adapts a foreign host's ad hoc imperative messaging API
// into the bridge transport contract. A third-party embedder that only
// offers "post a message" and "register a message callback" plugs in here;
// the shim buffers callback deliveries so the envelope contract (ordered,
// pull-based inbound stream) holds unchanged.
package hostshim

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/appbridge/appbridge-go/internal/queue"
	"github.com/appbridge/appbridge-go/transport"
)

// ForeignHost is the minimal surface an embedding host must offer.
type ForeignHost interface {
	// PostMessage delivers one message to the host. Must preserve call order.
	PostMessage(msg []byte) error
	// SetMessageHandler registers the callback for host-originated
	// messages. The shim registers exactly one handler, at construction.
	SetMessageHandler(fn func(msg []byte))
}

// Disconnecter is optionally implemented by hosts that want to be told when
// the shim is closed.
type Disconnecter interface {
	Disconnect()
}

// Transport adapts a ForeignHost. Messages the host delivers before Start
// are buffered and replayed in order once delivery begins.
type Transport struct {
	host ForeignHost

	inbox   *queue.Queue
	msgs    chan []byte
	started atomic.Bool

	closeMu sync.Mutex
	closed  bool
}

// New wires the shim to the host. The host's message handler is claimed
// immediately so no early deliveries are lost.
func New(host ForeignHost) *Transport {
	t := &Transport{host: host, inbox: queue.New(), msgs: make(chan []byte)}
	host.SetMessageHandler(func(msg []byte) {
		buf := make([]byte, len(msg))
		copy(buf, msg)
		t.inbox.Push(buf)
	})
	return t
}

// Start begins draining buffered and future host deliveries. Idempotent.
func (t *Transport) Start(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return nil
	}
	go func() {
		defer close(t.msgs)
		for {
			msg, ok := t.inbox.Pop()
			if !ok {
				return
			}
			t.msgs <- msg
		}
	}()
	return nil
}

// Send forwards one envelope through the host's post API.
func (t *Transport) Send(ctx context.Context, msg []byte) error {
	t.closeMu.Lock()
	closed := t.closed
	t.closeMu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	return t.host.PostMessage(msg)
}

// Messages is the inbound stream of host deliveries.
func (t *Transport) Messages() <-chan []byte { return t.msgs }

// Close stops accepting deliveries and notifies hosts that care. Idempotent.
func (t *Transport) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	t.inbox.Close()
	if d, ok := t.host.(Disconnecter); ok {
		d.Disconnect()
	}
	return nil
}

var _ transport.Transport = (*Transport)(nil)
