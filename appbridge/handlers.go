package appbridge

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/appbridge/appbridge-go/bridge"
	"github.com/appbridge/appbridge-go/internal/jsonrpc"
	"github.com/appbridge/appbridge-go/session"
)

func (b *AppBridge) registerHandlers() {
	b.ep.HandleRequest(string(bridge.InitializeMethod), b.handleInitialize)
	b.ep.HandleRequest(string(bridge.SendMessageMethod), b.handleSendMessage)
	b.ep.HandleRequest(string(bridge.OpenLinkMethod), b.handleOpenLink)
	b.ep.HandleRequest(string(bridge.InvokeOperationMethod), b.handleInvokeOperation)
	b.ep.HandleRequest(string(bridge.ReadResourceMethod), b.handleReadResource)
	b.ep.HandleRequest(string(bridge.RequestDisplayModeMethod), b.handleRequestDisplayMode)

	b.ep.HandleNotification(string(bridge.InitializedNotificationMethod), b.handleInitialized)
	b.ep.HandleNotification(string(bridge.SizeChangedNotificationMethod), b.handleSizeChanged)
	b.ep.HandleNotification(string(bridge.ModelContextNotificationMethod), b.handleModelContext)
	b.ep.HandleNotification(string(bridge.LogMessageNotificationMethod), b.handleLog)
}

func (b *AppBridge) handleInitialize(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params bridge.InitializeRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	if err := b.machine.To(session.StateInitializing); err != nil {
		b.log.WarnContext(ctx, "appbridge.initialize.bad_state", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "initialize out of order", nil), nil
	}

	b.mu.Lock()
	b.viewInfo = params.ViewInfo
	b.viewCaps = params.Capabilities
	hostCtx := b.hostCtx.Clone()
	b.handshakeSnapshotted = true
	b.mu.Unlock()

	// The host decides the protocol version: the view's is honored when it
	// matches, otherwise the host's own revision is returned.
	negotiated := bridge.ProtocolVersion
	if params.ProtocolVersion == bridge.ProtocolVersion {
		negotiated = params.ProtocolVersion
	}

	b.log.InfoContext(ctx, "appbridge.initialize",
		slog.String("view", params.ViewInfo.Name),
		slog.String("view_version", params.ViewInfo.Version),
		slog.String("protocol_version", negotiated))

	return jsonrpc.NewResultResponse(req.ID, &bridge.InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    b.Capabilities(),
		HostInfo:        b.info,
		HostContext:     hostCtx,
	})
}

func (b *AppBridge) handleInitialized(ctx context.Context, params json.RawMessage) {
	if err := b.machine.To(session.StateReady); err != nil {
		b.log.WarnContext(ctx, "appbridge.initialized.bad_state", slog.String("err", err.Error()))
		return
	}
	b.flushParkedPatches(ctx)
	b.log.InfoContext(ctx, "appbridge.session.ready", slog.String("session_id", b.sessionID))
	b.readyOnce.Do(func() { close(b.readyCh) })
}

// flushParkedPatches delivers context patches applied during the handshake
// window, after the initialize result was snapshotted but before the session
// was ready. They go out in application order so the view's merged snapshot
// converges on the host's.
func (b *AppBridge) flushParkedPatches(ctx context.Context) {
	b.mu.Lock()
	parked := b.parkedPatches
	b.parkedPatches = nil
	b.patchesFlushed = true
	b.mu.Unlock()

	for _, patch := range parked {
		if err := b.ep.Notify(ctx, string(bridge.HostContextChangedNotificationMethod), patch); err != nil {
			b.log.ErrorContext(ctx, "appbridge.context.flush_fail", slog.String("err", err.Error()))
			return
		}
	}
}

func (b *AppBridge) handleSendMessage(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if b.Capabilities().SendMessage == nil || b.onMessage == nil {
		return unsupported(req, "sendMessage"), nil
	}
	var params bridge.SendMessageRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}
	res, err := b.onMessage(ctx, &params)
	if err != nil {
		return nil, err
	}
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (b *AppBridge) handleOpenLink(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if b.Capabilities().OpenLink == nil || b.onOpenLink == nil {
		return unsupported(req, "openLink"), nil
	}
	var params bridge.OpenLinkRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URL == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}
	res, err := b.onOpenLink(ctx, params.URL)
	if err != nil {
		return nil, err
	}
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (b *AppBridge) handleInvokeOperation(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if b.Capabilities().Operations == nil || b.backend == nil {
		return unsupported(req, "operations"), nil
	}
	if !b.machine.Is(session.StateReady) {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session not ready", nil), nil
	}
	var params bridge.InvokeOperationRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	res, err := b.backend.CallOperation(ctx, params.Name, params.Arguments)
	if err != nil {
		b.log.ErrorContext(ctx, "appbridge.invoke_operation.fail",
			slog.String("operation", params.Name), slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "operation failed", nil), nil
	}
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (b *AppBridge) handleReadResource(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if b.Capabilities().Resources == nil || b.backend == nil {
		return unsupported(req, "resources"), nil
	}
	if !b.machine.Is(session.StateReady) {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session not ready", nil), nil
	}
	var params bridge.ReadResourceRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	res, err := b.backend.ReadResource(ctx, params.URI)
	if err != nil {
		b.log.ErrorContext(ctx, "appbridge.read_resource.fail",
			slog.String("uri", params.URI), slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "resource read failed", nil), nil
	}
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (b *AppBridge) handleRequestDisplayMode(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params bridge.RequestDisplayModeRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Mode == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	current := b.HostContext().DisplayMode
	applied := current
	if b.onDisplayMode != nil {
		mode, err := b.onDisplayMode(ctx, params.Mode)
		if err != nil {
			return nil, err
		}
		applied = mode
	}

	if applied != current {
		if err := b.UpdateHostContext(ctx, &bridge.HostContextPatch{DisplayMode: &applied}); err != nil {
			b.log.ErrorContext(ctx, "appbridge.display_mode.context_push_fail", slog.String("err", err.Error()))
		}
	}
	return jsonrpc.NewResultResponse(req.ID, &bridge.RequestDisplayModeResult{Mode: applied})
}

func (b *AppBridge) handleSizeChanged(ctx context.Context, params json.RawMessage) {
	if b.onSizeChanged == nil {
		return
	}
	var size bridge.SizeChanged
	if err := json.Unmarshal(params, &size); err != nil {
		b.log.ErrorContext(ctx, "appbridge.size_changed.invalid", slog.String("err", err.Error()))
		return
	}
	b.onSizeChanged(ctx, &size)
}

func (b *AppBridge) handleModelContext(ctx context.Context, params json.RawMessage) {
	// Best-effort surface: silently dropped when not wired.
	if b.Capabilities().ModelContext == nil || b.onModelCtx == nil {
		return
	}
	var update bridge.ModelContextUpdate
	if err := json.Unmarshal(params, &update); err != nil {
		b.log.ErrorContext(ctx, "appbridge.model_context.invalid", slog.String("err", err.Error()))
		return
	}
	b.onModelCtx(ctx, &update)
}

func (b *AppBridge) handleLog(ctx context.Context, params json.RawMessage) {
	if b.Capabilities().Logging == nil || b.onLog == nil {
		return
	}
	var msg bridge.LogMessage
	if err := json.Unmarshal(params, &msg); err != nil {
		b.log.ErrorContext(ctx, "appbridge.log.invalid", slog.String("err", err.Error()))
		return
	}
	b.onLog(ctx, &msg)
}

// unsupported answers a capability-gated request the host never declared.
// A well-defined rejection, not a protocol fault: the view can fall back.
func unsupported(req *jsonrpc.Request, capability string) *jsonrpc.Response {
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "capability not supported", map[string]string{
		"capability": capability,
	})
}
