package app

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/appbridge/appbridge-go/bridge"
	"github.com/appbridge/appbridge-go/internal/jsonrpc"
	"github.com/appbridge/appbridge-go/session"
)

// OnOperationInput registers the handler for final operation arguments.
func (a *App) OnOperationInput(fn func(ctx context.Context, input *bridge.OperationInput)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onOperationInput = fn
}

// OnOperationInputPartial registers the handler for streamed, healed
// partial arguments. The payload is preview data, never final.
func (a *App) OnOperationInputPartial(fn func(ctx context.Context, input *bridge.OperationInputPartial)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onOperationInputPartial = fn
}

// OnOperationResult registers the handler for operation results.
func (a *App) OnOperationResult(fn func(ctx context.Context, res *bridge.OperationResult)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onOperationResult = fn
}

// OnOperationCancelled registers the handler for operation cancellation.
func (a *App) OnOperationCancelled(fn func(ctx context.Context, c *bridge.OperationCancelled)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onOperationCancelled = fn
}

// OnOperationListChanged registers the handler for live operation-list
// changes. Only delivered when the view declared the matching capability.
func (a *App) OnOperationListChanged(fn func(ctx context.Context)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onOperationListChanged = fn
}

// OnHostContextChanged registers the handler invoked with the full merged
// snapshot after each context patch.
func (a *App) OnHostContextChanged(fn func(ctx context.Context, snapshot bridge.HostContext)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onHostContextChanged = fn
}

// OnSizeChanged registers the handler for host-applied size changes.
func (a *App) OnSizeChanged(fn func(ctx context.Context, size *bridge.SizeChanged)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onSizeChanged = fn
}

// OnTeardown registers the cleanup hook run when the host requests
// teardown. It must release the view's resources synchronously; the ack is
// sent after it returns.
func (a *App) OnTeardown(fn func(ctx context.Context)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onTeardown = fn
}

func (a *App) registerHandlers() {
	a.ep.HandleNotification(string(bridge.OperationInputNotificationMethod), func(ctx context.Context, params json.RawMessage) {
		var input bridge.OperationInput
		if !a.decodeNotification(ctx, "operation input", params, &input) {
			return
		}
		a.mu.Lock()
		fn := a.onOperationInput
		a.mu.Unlock()
		if fn != nil {
			fn(ctx, &input)
		}
	})

	a.ep.HandleNotification(string(bridge.OperationInputPartialNotificationMethod), func(ctx context.Context, params json.RawMessage) {
		var input bridge.OperationInputPartial
		if !a.decodeNotification(ctx, "partial operation input", params, &input) {
			return
		}
		a.mu.Lock()
		fn := a.onOperationInputPartial
		a.mu.Unlock()
		if fn != nil {
			fn(ctx, &input)
		}
	})

	a.ep.HandleNotification(string(bridge.OperationResultNotificationMethod), func(ctx context.Context, params json.RawMessage) {
		var res bridge.OperationResult
		if !a.decodeNotification(ctx, "operation result", params, &res) {
			return
		}
		a.mu.Lock()
		fn := a.onOperationResult
		a.mu.Unlock()
		if fn != nil {
			fn(ctx, &res)
		}
	})

	a.ep.HandleNotification(string(bridge.OperationCancelledNotificationMethod), func(ctx context.Context, params json.RawMessage) {
		var c bridge.OperationCancelled
		if !a.decodeNotification(ctx, "operation cancelled", params, &c) {
			return
		}
		a.mu.Lock()
		fn := a.onOperationCancelled
		a.mu.Unlock()
		if fn != nil {
			fn(ctx, &c)
		}
	})

	a.ep.HandleNotification(string(bridge.OperationListChangedNotificationMethod), func(ctx context.Context, params json.RawMessage) {
		a.mu.Lock()
		fn := a.onOperationListChanged
		a.mu.Unlock()
		if fn != nil {
			fn(ctx)
		}
	})

	a.ep.HandleNotification(string(bridge.HostContextChangedNotificationMethod), func(ctx context.Context, params json.RawMessage) {
		var patch bridge.HostContextPatch
		if !a.decodeNotification(ctx, "host context patch", params, &patch) {
			return
		}
		a.mu.Lock()
		a.hostCtx.Apply(&patch)
		snapshot := a.hostCtx.Clone()
		fn := a.onHostContextChanged
		a.mu.Unlock()
		if fn != nil {
			fn(ctx, snapshot)
		}
	})

	a.ep.HandleNotification(string(bridge.SizeChangedNotificationMethod), func(ctx context.Context, params json.RawMessage) {
		var size bridge.SizeChanged
		if !a.decodeNotification(ctx, "size change", params, &size) {
			return
		}
		a.mu.Lock()
		fn := a.onSizeChanged
		a.mu.Unlock()
		if fn != nil {
			fn(ctx, &size)
		}
	})

	a.ep.HandleRequest(string(bridge.TeardownMethod), a.handleTeardown)
}

// handleTeardown runs the view's cleanup hook, writes the ack itself so the
// acknowledgment is on the wire before the session closes, then closes.
func (a *App) handleTeardown(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if err := a.machine.To(session.StateTearingDown); err != nil {
		a.log.WarnContext(ctx, "app.teardown.bad_state", slog.String("err", err.Error()))
	}

	a.mu.Lock()
	fn := a.onTeardown
	a.mu.Unlock()
	if fn != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.log.ErrorContext(ctx, "app.teardown_handler.panic", slog.Any("panic", r))
				}
			}()
			fn(ctx)
		}()
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, &bridge.TeardownResult{})
	if err != nil {
		return nil, err
	}
	if err := a.ep.Respond(ctx, resp); err != nil {
		a.log.ErrorContext(ctx, "app.teardown.ack_fail", slog.String("err", err.Error()))
	}
	_ = a.ep.Close()
	return nil, nil
}

func (a *App) decodeNotification(ctx context.Context, what string, params json.RawMessage, v any) bool {
	if err := json.Unmarshal(params, v); err != nil {
		a.log.ErrorContext(ctx, "app.notification.invalid",
			slog.String("what", what), slog.String("err", err.Error()))
		return false
	}
	return true
}
