// Package dispatch implements the pending-request table for one side of a
// bridge session: correlation-id allocation, response matching, local-only
// cancellation, and en-masse rejection on close.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/appbridge/appbridge-go/internal/jsonrpc"
)

var (
	// ErrDispatcherClosed indicates the session is closed; no further
	// requests can be issued and all pending ones were rejected.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

// SendFunc emits one request envelope to the peer. The dispatcher registers
// the pending entry before calling it so a fast response cannot be missed.
type SendFunc func(ctx context.Context, req *jsonrpc.Request) error

type pendingCall struct {
	issuedAt time.Time
	respCh   chan *jsonrpc.Response
	errCh    chan error
}

// Dispatcher coordinates outbound requests with id correlation. It never
// emits cancellation on the wire: cancelling a call only rejects the local
// waiter and forgets the id, so a late response is dropped on arrival.
type Dispatcher struct {
	send SendFunc

	mu      sync.Mutex
	pending map[string]*pendingCall // id.String() -> call

	nextID uint64

	closed   atomic.Bool
	closeErr error
}

// New constructs a Dispatcher that emits requests through send.
func New(send SendFunc) *Dispatcher {
	return &Dispatcher{send: send, pending: make(map[string]*pendingCall)}
}

// Call sends a request and waits for the matching response or context
// cancellation. Concurrent calls are fully independent; responses may
// resolve them in any order.
func (d *Dispatcher) Call(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	if d.closed.Load() {
		return nil, d.closeReason()
	}

	id := jsonrpc.NewRequestID(atomic.AddUint64(&d.nextID, 1))
	key := id.String()

	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	pc := &pendingCall{
		issuedAt: time.Now(),
		respCh:   make(chan *jsonrpc.Response, 1),
		errCh:    make(chan error, 1),
	}
	d.mu.Lock()
	if d.closed.Load() {
		d.mu.Unlock()
		return nil, d.closeReason()
	}
	d.pending[key] = pc
	d.mu.Unlock()

	if err := d.send(ctx, req); err != nil {
		d.forget(key)
		return nil, err
	}

	select {
	case resp := <-pc.respCh:
		return resp, nil
	case err := <-pc.errCh:
		return nil, err
	case <-ctx.Done():
		// Local-only cancellation: the request already reached the peer and
		// may still be answered; the answer is dropped since the id is no
		// longer pending.
		d.forget(key)
		return nil, ctx.Err()
	}
}

// OnResponse delivers an inbound response to its waiting call. Responses
// for unknown or already-resolved ids are dropped without error; they can
// legitimately arrive after local cancellation.
func (d *Dispatcher) OnResponse(resp *jsonrpc.Response) (matched bool) {
	if resp == nil || resp.ID.IsNil() {
		return false
	}
	key := resp.ID.String()
	d.mu.Lock()
	pc, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if ok {
		pc.respCh <- resp
	}
	return ok
}

// Len reports the number of requests currently pending.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close rejects all pending calls with err and refuses new ones. Idempotent.
func (d *Dispatcher) Close(err error) {
	if err == nil {
		err = ErrDispatcherClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.closeErr = err
	for key, pc := range d.pending {
		delete(d.pending, key)
		pc.errCh <- err
	}
}

func (d *Dispatcher) closeReason() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closeErr != nil {
		return d.closeErr
	}
	return ErrDispatcherClosed
}

func (d *Dispatcher) forget(key string) {
	d.mu.Lock()
	delete(d.pending, key)
	d.mu.Unlock()
}
