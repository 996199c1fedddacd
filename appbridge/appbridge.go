// Package appbridge implements the host-side bridge: the API a trusted
// coordinating process uses to embed a sandboxed view. It answers the
// handshake, negotiates capabilities, pushes host context and operation
// data, proxies the view's operation and resource requests to a backend
// client, and drives advisory teardown.
//
// The backend service is an external collaborator reached only through the
// BackendClient seam; package mcpback provides an implementation backed by
// an MCP client session.
package appbridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appbridge/appbridge-go/bridge"
	"github.com/appbridge/appbridge-go/internal/logctx"
	"github.com/appbridge/appbridge-go/internal/peer"
	"github.com/appbridge/appbridge-go/session"
	"github.com/appbridge/appbridge-go/transport"
)

const defaultTeardownGrace = 3 * time.Second

// BackendClient is the seam to the backend service that owns operations
// and resources. The bridge consumes it through exactly two calls and
// translates results into protocol shape unchanged.
type BackendClient interface {
	// CallOperation invokes a named backend operation with raw arguments.
	CallOperation(ctx context.Context, name string, args json.RawMessage) (*bridge.OperationResult, error)
	// ReadResource reads a named backend resource.
	ReadResource(ctx context.Context, uri string) (*bridge.ReadResourceResult, error)
}

// MessageHandler decides whether to accept a conversational message posted
// by the view.
type MessageHandler func(ctx context.Context, req *bridge.SendMessageRequest) (*bridge.SendMessageResult, error)

// LinkHandler decides whether to open a link requested by the view.
type LinkHandler func(ctx context.Context, url string) (*bridge.OpenLinkResult, error)

// DisplayModeHandler decides which display mode to actually apply for an
// advisory request. The returned mode may differ from the requested one.
type DisplayModeHandler func(ctx context.Context, requested bridge.DisplayMode) (bridge.DisplayMode, error)

// AppBridge is the host-side bridge. One AppBridge serves exactly one
// session over one transport.
type AppBridge struct {
	sessionID string
	info      bridge.ImplementationInfo
	backend   BackendClient
	log       *slog.Logger

	teardownGrace time.Duration
	explicitCaps  *bridge.HostCapabilities

	machine *session.Machine
	ep      *peer.Endpoint

	readyCh   chan struct{}
	readyOnce sync.Once

	mu       sync.Mutex
	viewInfo bridge.ImplementationInfo
	viewCaps bridge.ViewCapabilities
	hostCtx  bridge.HostContext
	// Handshake bookkeeping, guarded by mu: once the initialize result has
	// been snapshotted, context patches can no longer travel with it, and
	// until the session is ready they cannot go on the wire either. They are
	// parked here and flushed as notifications the moment ready is reached.
	handshakeSnapshotted bool
	patchesFlushed       bool
	parkedPatches        []*bridge.HostContextPatch

	onMessage     MessageHandler
	onOpenLink    LinkHandler
	onDisplayMode DisplayModeHandler
	onSizeChanged func(ctx context.Context, size *bridge.SizeChanged)
	onModelCtx    func(ctx context.Context, update *bridge.ModelContextUpdate)
	onLog         func(ctx context.Context, msg *bridge.LogMessage)
}

// Option configures an AppBridge.
type Option func(*AppBridge)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *AppBridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithHostContext sets the initial host context delivered at handshake.
func WithHostContext(hc bridge.HostContext) Option {
	return func(b *AppBridge) { b.hostCtx = hc.Clone() }
}

// WithTeardownGrace bounds how long Teardown waits for the view's ack
// before proceeding to closed anyway.
func WithTeardownGrace(d time.Duration) Option {
	return func(b *AppBridge) {
		if d > 0 {
			b.teardownGrace = d
		}
	}
}

// WithCapabilities overrides the host capability set declared at
// handshake. Without it, capabilities are derived from what is actually
// wired: a backend enables operations and resources, and each registered
// handler enables its surface.
func WithCapabilities(caps bridge.HostCapabilities) Option {
	return func(b *AppBridge) { b.explicitCaps = &caps }
}

// WithMessageHandler accepts conversational messages from the view and
// enables the sendMessage capability.
func WithMessageHandler(h MessageHandler) Option {
	return func(b *AppBridge) { b.onMessage = h }
}

// WithLinkHandler accepts link-open requests from the view and enables the
// openLink capability.
func WithLinkHandler(h LinkHandler) Option {
	return func(b *AppBridge) { b.onOpenLink = h }
}

// WithDisplayModeHandler decides advisory display-mode requests. Without
// it every request is answered with the currently applied mode.
func WithDisplayModeHandler(h DisplayModeHandler) Option {
	return func(b *AppBridge) { b.onDisplayMode = h }
}

// WithSizeChangedHandler observes the view's preferred-size reports.
func WithSizeChangedHandler(fn func(ctx context.Context, size *bridge.SizeChanged)) Option {
	return func(b *AppBridge) { b.onSizeChanged = fn }
}

// WithModelContextHandler accepts model-context pushes from the view and
// enables the modelContext capability.
func WithModelContextHandler(fn func(ctx context.Context, update *bridge.ModelContextUpdate)) Option {
	return func(b *AppBridge) { b.onModelCtx = fn }
}

// WithLogHandler accepts view log records and enables the logging capability.
func WithLogHandler(fn func(ctx context.Context, msg *bridge.LogMessage)) Option {
	return func(b *AppBridge) { b.onLog = fn }
}

// New constructs a host-side bridge identifying itself as info and
// proxying operation and resource calls to backend. A nil backend is
// permitted; the bridge then declares neither proxy capability.
func New(info bridge.ImplementationInfo, backend BackendClient, opts ...Option) *AppBridge {
	b := &AppBridge{
		sessionID:     uuid.NewString(),
		info:          info,
		backend:       backend,
		log:           slog.Default(),
		teardownGrace: defaultTeardownGrace,
		machine:       session.NewMachine(),
		readyCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// SessionID identifies this session in logs.
func (b *AppBridge) SessionID() string { return b.sessionID }

// State reports the current lifecycle state.
func (b *AppBridge) State() session.State { return b.machine.State() }

// Ready closes when the session reaches the ready state: the handshake was
// answered and the view's initialized notification observed, in that
// order. Only then is it safe to push operation data.
func (b *AppBridge) Ready() <-chan struct{} { return b.readyCh }

// Done closes when the session has closed or failed. Before Connect there
// is nothing to wait for; the returned channel is already closed.
func (b *AppBridge) Done() <-chan struct{} {
	if b.ep == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return b.ep.Done()
}

// ViewInfo returns the view's identity as exchanged at handshake.
func (b *AppBridge) ViewInfo() bridge.ImplementationInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewInfo
}

// ViewCapabilities returns the view's declared capabilities.
func (b *AppBridge) ViewCapabilities() bridge.ViewCapabilities {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewCaps
}

// HostContext returns a copy of the current host context.
func (b *AppBridge) HostContext() bridge.HostContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hostCtx.Clone()
}

// Capabilities returns the capability set this host declares at handshake.
func (b *AppBridge) Capabilities() bridge.HostCapabilities {
	if b.explicitCaps != nil {
		return *b.explicitCaps
	}
	caps := bridge.HostCapabilities{}
	if b.backend != nil {
		caps.Operations = &struct{}{}
		caps.Resources = &struct{}{}
	}
	if b.onMessage != nil {
		caps.SendMessage = &struct{}{}
	}
	if b.onOpenLink != nil {
		caps.OpenLink = &struct{}{}
	}
	if b.onLog != nil {
		caps.Logging = &struct{}{}
	}
	if b.onModelCtx != nil {
		caps.ModelContext = &struct{}{}
	}
	return caps
}

// Connect attaches the bridge to a transport and starts serving. It
// returns immediately; the handshake completes when the view sends
// initialize, observable via Ready.
func (b *AppBridge) Connect(ctx context.Context, t transport.Transport) error {
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       b.sessionID,
		Peer:            "host",
		ProtocolVersion: bridge.ProtocolVersion,
	})
	b.ep = peer.New("host", t, b.machine, b.log)
	b.registerHandlers()
	return b.ep.Start(ctx)
}

// Close shuts the session down without the teardown round-trip. Prefer
// Teardown for cooperative shutdown.
func (b *AppBridge) Close() error {
	if b.ep == nil {
		return nil
	}
	return b.ep.Close()
}
