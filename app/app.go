// Package app implements the view-side bridge: the API a sandboxed,
// untrusted view uses to talk to its embedding host. It performs the
// handshake, caches host-pushed context, exposes capability-gated outbound
// requests, and dispatches host notifications to registered handlers.
//
// Handlers must be registered before Connect; the host may begin pushing
// data the moment the session is ready.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/appbridge/appbridge-go/bridge"
	"github.com/appbridge/appbridge-go/internal/logctx"
	"github.com/appbridge/appbridge-go/internal/peer"
	"github.com/appbridge/appbridge-go/session"
	"github.com/appbridge/appbridge-go/transport"
)

// App is the view-side bridge. One App serves exactly one session over one
// transport; after the session closes or fails, reconnecting requires a
// fresh App and a fresh transport.
type App struct {
	info bridge.ImplementationInfo
	caps bridge.ViewCapabilities
	log  *slog.Logger

	machine *session.Machine
	ep      *peer.Endpoint

	mu              sync.Mutex
	hostInfo        bridge.ImplementationInfo
	hostCaps        bridge.HostCapabilities
	hostCtx         bridge.HostContext
	protocolVersion string

	onOperationInput        func(ctx context.Context, input *bridge.OperationInput)
	onOperationInputPartial func(ctx context.Context, input *bridge.OperationInputPartial)
	onOperationResult       func(ctx context.Context, res *bridge.OperationResult)
	onOperationCancelled    func(ctx context.Context, c *bridge.OperationCancelled)
	onOperationListChanged  func(ctx context.Context)
	onHostContextChanged    func(ctx context.Context, snapshot bridge.HostContext)
	onSizeChanged           func(ctx context.Context, size *bridge.SizeChanged)
	onTeardown              func(ctx context.Context)
}

// Option configures an App.
type Option func(*App)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.log = l
		}
	}
}

// WithCapabilities declares the view's optional surfaces. Declared once;
// sent verbatim in the handshake.
func WithCapabilities(caps bridge.ViewCapabilities) Option {
	return func(a *App) { a.caps = caps }
}

// New constructs a view-side bridge identifying itself as info.
func New(info bridge.ImplementationInfo, opts ...Option) *App {
	a := &App{
		info:    info,
		log:     slog.Default(),
		machine: session.NewMachine(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// State reports the current lifecycle state.
func (a *App) State() session.State { return a.machine.State() }

// Done closes when the session has closed or failed.
func (a *App) Done() <-chan struct{} {
	if a.ep == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return a.ep.Done()
}

// Connect runs the handshake over t: it starts the transport, sends
// initialize, records the host's identity, capabilities and initial
// context, and confirms readiness with the initialized notification. On
// return the session is ready.
func (a *App) Connect(ctx context.Context, t transport.Transport) error {
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		Peer:            "view",
		ProtocolVersion: bridge.ProtocolVersion,
	})
	a.ep = peer.New("view", t, a.machine, a.log)
	a.registerHandlers()

	if err := a.ep.Start(ctx); err != nil {
		return fmt.Errorf("start endpoint: %w", err)
	}

	if err := a.machine.To(session.StateInitializing); err != nil {
		return err
	}

	var res bridge.InitializeResult
	err := a.ep.Call(ctx, string(bridge.InitializeMethod), &bridge.InitializeRequest{
		ProtocolVersion: bridge.ProtocolVersion,
		Capabilities:    a.caps,
		ViewInfo:        a.info,
	}, &res)
	if err != nil {
		a.ep.Fail(fmt.Errorf("handshake: %w", err))
		return fmt.Errorf("handshake: %w", err)
	}

	a.mu.Lock()
	a.hostInfo = res.HostInfo
	a.hostCaps = res.Capabilities
	a.hostCtx = res.HostContext.Clone()
	a.protocolVersion = res.ProtocolVersion
	a.mu.Unlock()

	if err := a.ep.Notify(ctx, string(bridge.InitializedNotificationMethod), &bridge.InitializedNotification{}); err != nil {
		a.ep.Fail(fmt.Errorf("confirm ready: %w", err))
		return fmt.Errorf("confirm ready: %w", err)
	}

	if err := a.machine.To(session.StateReady); err != nil {
		return err
	}
	a.log.InfoContext(ctx, "app.session.ready",
		slog.String("host", res.HostInfo.Name),
		slog.String("protocol_version", res.ProtocolVersion))
	return nil
}

// Close tears the view's side down deliberately and releases the transport.
func (a *App) Close() error {
	if a.ep == nil {
		return nil
	}
	return a.ep.Close()
}

// HostInfo returns the host's identity as exchanged at handshake.
func (a *App) HostInfo() bridge.ImplementationInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hostInfo
}

// HostCapabilities returns the host's declared capabilities. Immutable for
// the session; consult it before relying on optional behavior.
func (a *App) HostCapabilities() bridge.HostCapabilities {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hostCaps
}

// HostContext returns a copy of the most recently delivered context
// snapshot merged with all patches received so far.
func (a *App) HostContext() bridge.HostContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hostCtx.Clone()
}

// ProtocolVersion returns the negotiated protocol version.
func (a *App) ProtocolVersion() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.protocolVersion
}
