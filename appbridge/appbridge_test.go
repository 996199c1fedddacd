package appbridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/appbridge/appbridge-go/bridge"
	"github.com/appbridge/appbridge-go/session"
	"github.com/appbridge/appbridge-go/transport"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedView drives the view side of the wire by hand: it performs the
// handshake with raw envelopes and then behaves however the test scripts it.
type scriptedView struct {
	t  *testing.T
	tr transport.Transport
}

func newScriptedView(t *testing.T, tr transport.Transport) *scriptedView {
	t.Helper()
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start scripted view transport: %v", err)
	}
	return &scriptedView{t: t, tr: tr}
}

func (v *scriptedView) send(raw string) {
	v.t.Helper()
	if err := v.tr.Send(context.Background(), []byte(raw)); err != nil {
		v.t.Fatalf("scripted send: %v", err)
	}
}

func (v *scriptedView) recv() map[string]json.RawMessage {
	v.t.Helper()
	select {
	case raw, ok := <-v.tr.Messages():
		if !ok {
			v.t.Fatal("scripted view transport closed")
		}
		var msg map[string]json.RawMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			v.t.Fatalf("scripted recv: %v (%s)", err, raw)
		}
		return msg
	case <-time.After(time.Second):
		v.t.Fatal("scripted view timed out waiting for a message")
		return nil
	}
}

// handshake completes initialize/initialized and returns the handshake result.
func (v *scriptedView) handshake() *bridge.InitializeResult {
	v.t.Helper()
	v.send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{` +
		`"protocolVersion":"` + bridge.ProtocolVersion + `",` +
		`"capabilities":{"operations":{"listChanged":true}},` +
		`"viewInfo":{"name":"scripted-view","version":"0.0.1"}}}`)

	msg := v.recv()
	if _, ok := msg["result"]; !ok {
		v.t.Fatalf("handshake answer = %v, want result", msg)
	}
	var res bridge.InitializeResult
	if err := json.Unmarshal(msg["result"], &res); err != nil {
		v.t.Fatalf("decode handshake result: %v", err)
	}

	v.send(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	return &res
}

func connectScripted(t *testing.T, b *AppBridge) *scriptedView {
	t.Helper()
	viewEnd, hostEnd := transport.Pipe()
	if err := b.Connect(context.Background(), hostEnd); err != nil {
		t.Fatalf("host connect: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return newScriptedView(t, viewEnd)
}

func TestCapabilities_DerivedFromWiring(t *testing.T) {
	t.Parallel()

	bare := New(bridge.ImplementationInfo{Name: "h", Version: "1"}, nil, WithLogger(quietLogger()))
	caps := bare.Capabilities()
	if caps.Operations != nil || caps.Resources != nil || caps.SendMessage != nil ||
		caps.OpenLink != nil || caps.Logging != nil || caps.ModelContext != nil {
		t.Fatalf("bare bridge declares %+v, want nothing", caps)
	}

	wired := New(bridge.ImplementationInfo{Name: "h", Version: "1"},
		backendStub{},
		WithLogger(quietLogger()),
		WithMessageHandler(func(ctx context.Context, req *bridge.SendMessageRequest) (*bridge.SendMessageResult, error) {
			return &bridge.SendMessageResult{Accepted: true}, nil
		}),
		WithLogHandler(func(ctx context.Context, msg *bridge.LogMessage) {}),
	)
	caps = wired.Capabilities()
	if caps.Operations == nil || caps.Resources == nil {
		t.Fatal("backend did not enable operations and resources")
	}
	if caps.SendMessage == nil {
		t.Fatal("message handler did not enable sendMessage")
	}
	if caps.Logging == nil {
		t.Fatal("log handler did not enable logging")
	}
	if caps.OpenLink != nil || caps.ModelContext != nil {
		t.Fatalf("unwired surfaces declared: %+v", caps)
	}

	overridden := New(bridge.ImplementationInfo{Name: "h", Version: "1"}, backendStub{},
		WithLogger(quietLogger()),
		WithCapabilities(bridge.HostCapabilities{OpenLink: &struct{}{}}))
	caps = overridden.Capabilities()
	if caps.OpenLink == nil || caps.Operations != nil {
		t.Fatalf("explicit capabilities not honored: %+v", caps)
	}
}

type backendStub struct{}

func (backendStub) CallOperation(ctx context.Context, name string, args json.RawMessage) (*bridge.OperationResult, error) {
	return &bridge.OperationResult{}, nil
}

func (backendStub) ReadResource(ctx context.Context, uri string) (*bridge.ReadResourceResult, error) {
	return &bridge.ReadResourceResult{}, nil
}

func TestHandshake_NegotiatesProtocolVersion(t *testing.T) {
	t.Parallel()

	b := New(bridge.ImplementationInfo{Name: "h", Version: "1"}, nil, WithLogger(quietLogger()))
	view := connectScripted(t, b)
	res := view.handshake()

	if res.ProtocolVersion != bridge.ProtocolVersion {
		t.Fatalf("negotiated version = %q, want %q", res.ProtocolVersion, bridge.ProtocolVersion)
	}
	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatal("bridge never became ready")
	}
	if got := b.ViewInfo().Name; got != "scripted-view" {
		t.Fatalf("view info = %q", got)
	}
	vc := b.ViewCapabilities()
	if vc.Operations == nil || !vc.Operations.ListChanged {
		t.Fatalf("view capabilities = %+v, want operations.listChanged", vc)
	}
}

func TestHandshake_UnknownViewVersionGetsHostVersion(t *testing.T) {
	t.Parallel()

	b := New(bridge.ImplementationInfo{Name: "h", Version: "1"}, nil, WithLogger(quietLogger()))
	view := connectScripted(t, b)

	view.send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{` +
		`"protocolVersion":"1999-12-31",` +
		`"capabilities":{},` +
		`"viewInfo":{"name":"old-view","version":"0.0.1"}}}`)

	msg := view.recv()
	var res bridge.InitializeResult
	if err := json.Unmarshal(msg["result"], &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.ProtocolVersion != bridge.ProtocolVersion {
		t.Fatalf("negotiated version = %q, want host's %q", res.ProtocolVersion, bridge.ProtocolVersion)
	}
}

func TestDone_BeforeConnectIsClosed(t *testing.T) {
	t.Parallel()

	b := New(bridge.ImplementationInfo{Name: "h", Version: "1"}, nil, WithLogger(quietLogger()))
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("Done before Connect should be immediately closed")
	}
}

func TestPushes_RejectedBeforeReady(t *testing.T) {
	t.Parallel()

	b := New(bridge.ImplementationInfo{Name: "h", Version: "1"}, nil, WithLogger(quietLogger()))
	connectScripted(t, b)

	ctx := context.Background()
	if err := b.SendOperationInput(ctx, "op", nil); !errors.Is(err, bridge.ErrNotReady) {
		t.Fatalf("input push err = %v, want ErrNotReady", err)
	}
	if err := b.SendOperationResult(ctx, &bridge.OperationResult{}); !errors.Is(err, bridge.ErrNotReady) {
		t.Fatalf("result push err = %v, want ErrNotReady", err)
	}
	if err := b.NotifySizeChanged(ctx, 1, 1); !errors.Is(err, bridge.ErrNotReady) {
		t.Fatalf("size push err = %v, want ErrNotReady", err)
	}
}

func TestUpdateHostContext_BeforeReadyTravelsInHandshake(t *testing.T) {
	t.Parallel()

	b := New(bridge.ImplementationInfo{Name: "h", Version: "1"}, nil,
		WithLogger(quietLogger()),
		WithHostContext(bridge.HostContext{Theme: bridge.ThemeLight}))
	view := connectScripted(t, b)

	// Patch applied before the handshake: no notification, carried in the
	// initialize result instead.
	dark := bridge.ThemeDark
	if err := b.UpdateHostContext(context.Background(), &bridge.HostContextPatch{Theme: &dark}); err != nil {
		t.Fatalf("pre-ready update: %v", err)
	}

	res := view.handshake()
	if res.HostContext.Theme != bridge.ThemeDark {
		t.Fatalf("handshake context theme = %s, want dark", res.HostContext.Theme)
	}
}

func TestUpdateHostContext_DuringHandshakeWindowFlushedOnReady(t *testing.T) {
	t.Parallel()

	b := New(bridge.ImplementationInfo{Name: "h", Version: "1"}, nil,
		WithLogger(quietLogger()),
		WithHostContext(bridge.HostContext{Theme: bridge.ThemeLight, Locale: "en-US"}))
	view := connectScripted(t, b)

	// Handshake answered, but the view has not confirmed ready yet.
	view.send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{` +
		`"protocolVersion":"` + bridge.ProtocolVersion + `",` +
		`"capabilities":{},` +
		`"viewInfo":{"name":"v","version":"1"}}}`)
	msg := view.recv()
	var res bridge.InitializeResult
	if err := json.Unmarshal(msg["result"], &res); err != nil {
		t.Fatalf("decode handshake result: %v", err)
	}
	if res.HostContext.Theme != bridge.ThemeLight {
		t.Fatalf("handshake theme = %s, want light", res.HostContext.Theme)
	}

	// A patch lands inside the window: too late for the initialize result,
	// too early for the wire.
	dark := bridge.ThemeDark
	if err := b.UpdateHostContext(context.Background(), &bridge.HostContextPatch{Theme: &dark}); err != nil {
		t.Fatalf("mid-handshake update: %v", err)
	}
	if got := b.HostContext().Theme; got != bridge.ThemeDark {
		t.Fatalf("host cached theme = %s, want dark", got)
	}

	view.send(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatal("bridge never became ready")
	}

	// The parked patch arrives as a context-changed notification.
	note := view.recv()
	var method string
	if err := json.Unmarshal(note["method"], &method); err != nil || method != "notifications/host_context_changed" {
		t.Fatalf("view received %v, want host_context_changed", note)
	}
	var patch bridge.HostContextPatch
	if err := json.Unmarshal(note["params"], &patch); err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	if patch.Theme == nil || *patch.Theme != bridge.ThemeDark {
		t.Fatalf("flushed patch = %+v, want theme dark", patch)
	}
}

func TestNotifyOperationListChanged_GatedOnViewCapability(t *testing.T) {
	t.Parallel()

	b := New(bridge.ImplementationInfo{Name: "h", Version: "1"}, nil, WithLogger(quietLogger()))
	view := connectScripted(t, b)

	// A view that never declared operations.listChanged.
	view.send(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{` +
		`"protocolVersion":"` + bridge.ProtocolVersion + `",` +
		`"capabilities":{},` +
		`"viewInfo":{"name":"v","version":"1"}}}`)
	view.recv()
	view.send(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatal("bridge never became ready")
	}

	if err := b.NotifyOperationListChanged(context.Background()); !errors.Is(err, bridge.ErrUnsupported) {
		t.Fatalf("list-changed err = %v, want ErrUnsupported", err)
	}
}

func TestSendOperationInputPartial_RejectsUnhealableInput(t *testing.T) {
	t.Parallel()

	b := New(bridge.ImplementationInfo{Name: "h", Version: "1"}, nil, WithLogger(quietLogger()))
	view := connectScripted(t, b)
	view.handshake()
	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatal("bridge never became ready")
	}

	err := b.SendOperationInputPartial(context.Background(), "say", `{"a":1}}`)
	if !errors.Is(err, ErrPartialNotHealable) {
		t.Fatalf("err = %v, want ErrPartialNotHealable", err)
	}
}

func TestTeardown_GraceExpiryIsNotAnError(t *testing.T) {
	t.Parallel()

	b := New(bridge.ImplementationInfo{Name: "h", Version: "1"}, nil,
		WithLogger(quietLogger()),
		WithTeardownGrace(75*time.Millisecond))
	view := connectScripted(t, b)
	view.handshake()
	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatal("bridge never became ready")
	}

	// The scripted view reads the teardown request and never acks it.
	start := time.Now()
	if err := b.Teardown(context.Background()); err != nil {
		t.Fatalf("teardown after grace expiry: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("teardown returned after %v, before the grace period", elapsed)
	}

	if got := b.State(); got != session.StateClosed {
		t.Fatalf("state = %s, want closed", got)
	}
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("session never finished")
	}
}

func TestTeardown_AckedWithinGrace(t *testing.T) {
	t.Parallel()

	b := New(bridge.ImplementationInfo{Name: "h", Version: "1"}, nil,
		WithLogger(quietLogger()),
		WithTeardownGrace(2*time.Second))
	view := connectScripted(t, b)
	view.handshake()
	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatal("bridge never became ready")
	}

	done := make(chan error, 1)
	go func() { done <- b.Teardown(context.Background()) }()

	msg := view.recv()
	var method string
	if err := json.Unmarshal(msg["method"], &method); err != nil || method != "teardown" {
		t.Fatalf("scripted view received %v, want teardown request", msg)
	}
	view.send(`{"jsonrpc":"2.0","id":` + string(msg["id"]) + `,"result":{}}`)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("teardown: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("teardown never returned")
	}
	if got := b.State(); got != session.StateClosed {
		t.Fatalf("state = %s, want closed", got)
	}
}
