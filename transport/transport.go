// Package transport defines the abstract bidirectional channel that carries
// protocol envelopes across an isolation boundary, plus an in-process
// linked pair used for wiring two bridges directly together.
//
// A Transport moves opaque envelope bytes. It preserves per-instance send
// order, never retries a failed send, and reports failure upward; a
// transport failure is fatal to the session unless the caller reconnects
// with a fresh Transport. Concrete variants (WebSocket, web-view stream,
// foreign-host shim) live in subpackages and differ only in how bytes
// cross the boundary.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/appbridge/appbridge-go/internal/queue"
)

var (
	// ErrClosed indicates the transport has been closed.
	ErrClosed = errors.New("transport closed")
	// ErrInvalidMessage indicates a frame that cannot carry an envelope.
	ErrInvalidMessage = errors.New("invalid message frame")
)

// Transport is a bidirectional, ordered, reliable channel for envelope
// bytes. Implementations must be safe for concurrent use.
type Transport interface {
	// Start begins delivery of inbound messages. Idempotent.
	Start(ctx context.Context) error

	// Send enqueues one envelope for delivery to the peer. Messages sent in
	// order N, N+1 arrive at the peer in that order. Send never retries; an
	// error means the envelope was not delivered and the channel should be
	// treated as severed.
	Send(ctx context.Context, msg []byte) error

	// Messages is the inbound envelope stream. The channel closes when the
	// transport closes or the underlying channel is severed.
	Messages() <-chan []byte

	// Close releases underlying resources. Idempotent.
	Close() error
}

// pipeEnd is one half of an in-process linked pair.
type pipeEnd struct {
	peer *pipeEnd

	inbox   *queue.Queue
	msgs    chan []byte
	started atomic.Bool
	closeMu sync.Mutex
	closed  bool
}

// Pipe returns two linked Transports: envelopes sent on one arrive, in
// order, on the other's inbound stream. Closing either end severs both;
// envelopes already in flight are still delivered before the streams close.
func Pipe() (Transport, Transport) {
	a := &pipeEnd{inbox: queue.New(), msgs: make(chan []byte)}
	b := &pipeEnd{inbox: queue.New(), msgs: make(chan []byte)}
	a.peer = b
	b.peer = a
	return a, b
}

func (e *pipeEnd) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}
	go func() {
		defer close(e.msgs)
		for {
			msg, ok := e.inbox.Pop()
			if !ok {
				return
			}
			e.msgs <- msg
		}
	}()
	return nil
}

func (e *pipeEnd) Send(ctx context.Context, msg []byte) error {
	e.closeMu.Lock()
	closed := e.closed
	e.closeMu.Unlock()
	if closed {
		return ErrClosed
	}
	buf := make([]byte, len(msg))
	copy(buf, msg)
	if !e.peer.inbox.Push(buf) {
		return ErrClosed
	}
	return nil
}

func (e *pipeEnd) Messages() <-chan []byte { return e.msgs }

// Close severs the pair: both ends stop accepting sends and both inbound
// streams close once drained.
func (e *pipeEnd) Close() error {
	if e.markClosed() {
		e.inbox.Close()
		e.peer.sever()
	}
	return nil
}

func (e *pipeEnd) sever() {
	if e.markClosed() {
		e.inbox.Close()
	}
}

func (e *pipeEnd) markClosed() bool {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		return false
	}
	e.closed = true
	return true
}
