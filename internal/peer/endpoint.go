// Package peer implements the endpoint machinery shared by both sides of
// the bridge: transport ownership, the inbound decode/dispatch loop, typed
// request and notification handler registries, outbound call/notify
// primitives, and lifecycle-coupled shutdown.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/appbridge/appbridge-go/internal/dispatch"
	"github.com/appbridge/appbridge-go/internal/jsonrpc"
	"github.com/appbridge/appbridge-go/internal/logctx"
	"github.com/appbridge/appbridge-go/session"
	"github.com/appbridge/appbridge-go/transport"
)

var (
	// ErrTransportFailed indicates the underlying channel was severed while
	// the session was live. Fatal: the session moves to failed and all
	// pending requests are rejected.
	ErrTransportFailed = errors.New("transport failed")
	// ErrSessionClosed indicates the session was closed deliberately.
	ErrSessionClosed = errors.New("session closed")
)

// RequestHandler answers one inbound request. Returning an error produces
// an internal-error response; to control the error code, return a response
// built with jsonrpc.NewErrorResponse instead. Returning (nil, nil) means
// the handler already wrote the response itself via Respond.
type RequestHandler func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)

// NotificationHandler consumes one inbound notification. Panics are caught
// at the dispatch boundary, logged, and swallowed; a misbehaving handler
// must not take the session down.
type NotificationHandler func(ctx context.Context, params json.RawMessage)

// Endpoint is one side of a bridge session. Both app.App and
// appbridge.AppBridge are built on it.
type Endpoint struct {
	role string // "view" or "host"
	log  *slog.Logger

	t       transport.Transport
	disp    *dispatch.Dispatcher
	machine *session.Machine

	mu           sync.Mutex
	reqHandlers  map[string]RequestHandler
	noteHandlers map[string]NotificationHandler

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// New constructs an Endpoint over the given transport. The machine is
// shared with the owning bridge so lifecycle checks and dispatch agree.
func New(role string, t transport.Transport, machine *session.Machine, log *slog.Logger) *Endpoint {
	if log == nil {
		log = slog.Default()
	}
	e := &Endpoint{
		role:         role,
		log:          log,
		t:            t,
		machine:      machine,
		reqHandlers:  make(map[string]RequestHandler),
		noteHandlers: make(map[string]NotificationHandler),
		done:         make(chan struct{}),
	}
	e.disp = dispatch.New(func(ctx context.Context, req *jsonrpc.Request) error {
		return e.write(ctx, req)
	})
	return e
}

// Machine exposes the session lifecycle state machine.
func (e *Endpoint) Machine() *session.Machine { return e.machine }

// Done closes when the endpoint has shut down for any reason.
func (e *Endpoint) Done() <-chan struct{} { return e.done }

// Err reports why the endpoint shut down, nil while it is live.
func (e *Endpoint) Err() error {
	select {
	case <-e.done:
		return e.closeErr
	default:
		return nil
	}
}

// HandleRequest registers the handler for an inbound request method.
func (e *Endpoint) HandleRequest(method string, h RequestHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqHandlers[method] = h
}

// HandleNotification registers the handler for an inbound notification method.
func (e *Endpoint) HandleNotification(method string, h NotificationHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.noteHandlers[method] = h
}

// Start starts the transport and the inbound message loop.
func (e *Endpoint) Start(ctx context.Context) error {
	if err := e.t.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	go e.loop(context.WithoutCancel(ctx))
	return nil
}

// Call issues an outbound request and waits for the correlated response.
// An error response from the peer is returned as *jsonrpc.Error.
func (e *Endpoint) Call(ctx context.Context, method string, params any, result any) error {
	resp, err := e.disp.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// Notify emits a fire-and-forget notification.
func (e *Endpoint) Notify(ctx context.Context, method string, params any) error {
	note, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return e.write(ctx, note)
}

// Close shuts the endpoint down deliberately: the lifecycle moves to
// closed, pending requests are rejected, and the transport is released.
// Idempotent.
func (e *Endpoint) Close() error {
	e.shutdown(session.StateClosed, ErrSessionClosed)
	return nil
}

// Fail shuts the endpoint down after an unrecoverable transport error: the
// lifecycle moves to failed and no further sends are attempted.
func (e *Endpoint) Fail(err error) {
	if err == nil {
		err = ErrTransportFailed
	}
	e.shutdown(session.StateFailed, err)
}

func (e *Endpoint) shutdown(to session.State, err error) {
	e.closeOnce.Do(func() {
		e.closeErr = err
		if !e.machine.State().Terminal() {
			if terr := e.machine.To(to); terr != nil {
				e.log.Debug("peer.shutdown.transition_skipped", slog.String("err", terr.Error()))
			}
		}
		e.disp.Close(err)
		_ = e.t.Close()
		close(e.done)
	})
}

func (e *Endpoint) write(ctx context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := e.t.Send(ctx, raw); err != nil {
		return fmt.Errorf("send envelope: %w", err)
	}
	return nil
}

func (e *Endpoint) loop(ctx context.Context) {
	for raw := range e.t.Messages() {
		e.dispatchMessage(ctx, raw)
	}
	// Inbound stream ended. During teardown or after a deliberate close
	// that is the expected end of the session; anywhere else the channel
	// was severed under us.
	if e.machine.Is(session.StateTearingDown, session.StateClosed) {
		e.shutdown(session.StateClosed, ErrSessionClosed)
		return
	}
	e.Fail(ErrTransportFailed)
}

func (e *Endpoint) dispatchMessage(ctx context.Context, raw []byte) {
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.handleMalformed(ctx, raw, err)
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   string(msg.Kind()),
	})

	switch msg.Kind() {
	case jsonrpc.KindResponse:
		if matched := e.disp.OnResponse(msg.AsResponse()); !matched {
			// Late answer to a cancelled or already-resolved request.
			e.log.DebugContext(ctx, "peer.response.dropped")
		}
	case jsonrpc.KindRequest:
		req := msg.AsRequest()
		e.mu.Lock()
		h, ok := e.reqHandlers[req.Method]
		e.mu.Unlock()
		if !ok {
			resp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found", nil)
			if err := e.write(ctx, resp); err != nil {
				e.log.ErrorContext(ctx, "peer.respond.fail", slog.String("err", err.Error()))
			}
			return
		}
		// Requests run concurrently so the peer's outstanding calls resolve
		// independently and may be answered out of order.
		go e.serveRequest(ctx, req, h)
	case jsonrpc.KindNotification:
		req := msg.AsRequest()
		e.mu.Lock()
		h, ok := e.noteHandlers[req.Method]
		e.mu.Unlock()
		if !ok {
			// Notifications have no response channel; unknown methods are
			// ignored by design.
			e.log.DebugContext(ctx, "peer.notification.unhandled")
			return
		}
		e.runNotification(ctx, req, h)
	}
}

// Respond writes a response envelope directly. Used by handlers that must
// sequence work after the ack is on the wire, such as teardown.
func (e *Endpoint) Respond(ctx context.Context, resp *jsonrpc.Response) error {
	return e.write(ctx, resp)
}

func (e *Endpoint) serveRequest(ctx context.Context, req *jsonrpc.Request, h RequestHandler) {
	resp, done := e.invokeRequestHandler(ctx, req, h)
	if done {
		return
	}
	if err := e.write(ctx, resp); err != nil {
		e.log.ErrorContext(ctx, "peer.respond.fail", slog.String("err", err.Error()))
	}
}

func (e *Endpoint) invokeRequestHandler(ctx context.Context, req *jsonrpc.Request, h RequestHandler) (resp *jsonrpc.Response, done bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.ErrorContext(ctx, "peer.request_handler.panic", slog.Any("panic", r))
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
			done = false
		}
	}()
	resp, err := h(ctx, req)
	if err != nil {
		e.log.ErrorContext(ctx, "peer.request_handler.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), false
	}
	if resp == nil {
		return nil, true
	}
	return resp, false
}

func (e *Endpoint) runNotification(ctx context.Context, req *jsonrpc.Request, h NotificationHandler) {
	defer func() {
		if r := recover(); r != nil {
			e.log.ErrorContext(ctx, "peer.notification_handler.panic", slog.Any("panic", r))
		}
	}()
	h(ctx, req.Params)
}

// handleMalformed surfaces a local protocol error for an envelope that
// failed shape validation. When a request id is recoverable the peer gets
// an invalid-request error response; otherwise the fault is only logged.
func (e *Endpoint) handleMalformed(ctx context.Context, raw []byte, cause error) {
	e.log.ErrorContext(ctx, "peer.envelope.malformed", slog.String("err", cause.Error()))

	var probe struct {
		ID     *jsonrpc.RequestID `json:"id"`
		Method string             `json:"method"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return
	}
	if probe.ID.IsNil() || probe.Method == "" {
		return
	}
	resp := jsonrpc.NewErrorResponse(probe.ID, jsonrpc.ErrorCodeInvalidRequest, "invalid request", nil)
	if err := e.write(ctx, resp); err != nil {
		e.log.ErrorContext(ctx, "peer.respond.fail", slog.String("err", err.Error()))
	}
}
