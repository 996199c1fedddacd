package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/appbridge/appbridge-go/bridge"
	"github.com/appbridge/appbridge-go/session"
)

// SendMessage posts a conversational message on the view's behalf. Gated on
// the host's sendMessage capability; the result flags accept/reject rather
// than erroring at the protocol level.
func (a *App) SendMessage(ctx context.Context, content ...bridge.ContentBlock) (*bridge.SendMessageResult, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}
	if a.HostCapabilities().SendMessage == nil {
		return nil, bridge.ErrUnsupported
	}
	var res bridge.SendMessageResult
	if err := a.ep.Call(ctx, string(bridge.SendMessageMethod), &bridge.SendMessageRequest{Content: content}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// OpenLink asks the host to open a URL outside the view. Gated on the
// host's openLink capability.
func (a *App) OpenLink(ctx context.Context, url string) (*bridge.OpenLinkResult, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}
	if a.HostCapabilities().OpenLink == nil {
		return nil, bridge.ErrUnsupported
	}
	var res bridge.OpenLinkResult
	if err := a.ep.Call(ctx, string(bridge.OpenLinkMethod), &bridge.OpenLinkRequest{URL: url}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// InvokeOperation invokes a named backend operation through the host.
// Gated on the host's operations capability and on the session being
// ready. Callers needing a deadline supply it via ctx; the bridge imposes
// no implicit timeout so long-running operations are never cut off.
func (a *App) InvokeOperation(ctx context.Context, name string, args any) (*bridge.OperationResult, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}
	if a.HostCapabilities().Operations == nil {
		return nil, bridge.ErrUnsupported
	}
	raw, err := marshalArgs(args)
	if err != nil {
		return nil, err
	}
	var res bridge.OperationResult
	if err := a.ep.Call(ctx, string(bridge.InvokeOperationMethod), &bridge.InvokeOperationRequest{Name: name, Arguments: raw}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ReadResource reads a named backend resource through the host. Gated on
// the host's resources capability.
func (a *App) ReadResource(ctx context.Context, uri string) (*bridge.ReadResourceResult, error) {
	if err := a.ensureReady(); err != nil {
		return nil, err
	}
	if a.HostCapabilities().Resources == nil {
		return nil, bridge.ErrUnsupported
	}
	var res bridge.ReadResourceResult
	if err := a.ep.Call(ctx, string(bridge.ReadResourceMethod), &bridge.ReadResourceRequest{URI: uri}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RequestDisplayMode asks for a presentation change. Advisory: the host
// decides unilaterally; the returned mode is what it actually applied and
// may differ from the request.
func (a *App) RequestDisplayMode(ctx context.Context, mode bridge.DisplayMode) (bridge.DisplayMode, error) {
	if err := a.ensureReady(); err != nil {
		return "", err
	}
	var res bridge.RequestDisplayModeResult
	if err := a.ep.Call(ctx, string(bridge.RequestDisplayModeMethod), &bridge.RequestDisplayModeRequest{Mode: mode}, &res); err != nil {
		return "", err
	}
	return res.Mode, nil
}

// UpdateModelContext pushes context the backend-facing model should see,
// decoupled from any operation result. Best-effort: when the host never
// declared the modelContext capability the update is dropped locally
// without error.
func (a *App) UpdateModelContext(ctx context.Context, content ...bridge.ContentBlock) error {
	if err := a.ensureReady(); err != nil {
		return err
	}
	if a.HostCapabilities().ModelContext == nil {
		a.log.DebugContext(ctx, "app.model_context.dropped_unsupported")
		return nil
	}
	return a.ep.Notify(ctx, string(bridge.ModelContextNotificationMethod), &bridge.ModelContextUpdate{Content: content})
}

// ReportSize reports the view's preferred rendered size.
func (a *App) ReportSize(ctx context.Context, width, height float64) error {
	if err := a.ensureReady(); err != nil {
		return err
	}
	return a.ep.Notify(ctx, string(bridge.SizeChangedNotificationMethod), &bridge.SizeChanged{Width: width, Height: height})
}

// Log forwards a log record to the host. Gated on the host's logging
// capability; unsupported hosts drop it locally without error.
func (a *App) Log(ctx context.Context, level bridge.LogLevel, message string, data any) error {
	if err := a.ensureReady(); err != nil {
		return err
	}
	if a.HostCapabilities().Logging == nil {
		a.log.DebugContext(ctx, "app.log.dropped_unsupported", slog.String("message", message))
		return nil
	}
	return a.ep.Notify(ctx, string(bridge.LogMessageNotificationMethod), &bridge.LogMessage{Level: level, Message: message, Data: data})
}

func (a *App) ensureReady() error {
	if !a.machine.Is(session.StateReady) {
		return bridge.ErrNotReady
	}
	return nil
}

func marshalArgs(args any) (json.RawMessage, error) {
	switch v := args.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		return raw, nil
	}
}
