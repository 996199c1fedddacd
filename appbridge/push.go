package appbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/appbridge/appbridge-go/bridge"
	"github.com/appbridge/appbridge-go/internal/jsonheal"
	"github.com/appbridge/appbridge-go/session"
)

// ErrPartialNotHealable is returned when streamed partial input is too
// damaged to repair into parseable JSON.
var ErrPartialNotHealable = errors.New("partial input could not be healed into valid JSON")

// SendOperationInput delivers the final arguments for the active operation.
func (b *AppBridge) SendOperationInput(ctx context.Context, name string, args json.RawMessage) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	return b.ep.Notify(ctx, string(bridge.OperationInputNotificationMethod), &bridge.OperationInput{
		Name:      name,
		Arguments: args,
	})
}

// SendOperationInputPartial streams a prefix of the operation arguments.
// The prefix is structurally healed before delivery; the view must treat
// it as unreliable preview data.
func (b *AppBridge) SendOperationInputPartial(ctx context.Context, name string, partial string) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	healed := jsonheal.Heal(partial)
	if !json.Valid([]byte(healed)) {
		return fmt.Errorf("%w: %q", ErrPartialNotHealable, partial)
	}
	return b.ep.Notify(ctx, string(bridge.OperationInputPartialNotificationMethod), &bridge.OperationInputPartial{
		Name:      name,
		Arguments: json.RawMessage(healed),
	})
}

// SendOperationResult delivers an operation outcome to the view.
func (b *AppBridge) SendOperationResult(ctx context.Context, res *bridge.OperationResult) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	return b.ep.Notify(ctx, string(bridge.OperationResultNotificationMethod), res)
}

// CancelOperation tells the view the active operation was cancelled.
func (b *AppBridge) CancelOperation(ctx context.Context, reason string) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	return b.ep.Notify(ctx, string(bridge.OperationCancelledNotificationMethod), &bridge.OperationCancelled{Reason: reason})
}

// NotifyOperationListChanged signals a live operation-list change. Gated on
// the view's declared capability.
func (b *AppBridge) NotifyOperationListChanged(ctx context.Context) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	caps := b.ViewCapabilities()
	if caps.Operations == nil || !caps.Operations.ListChanged {
		return bridge.ErrUnsupported
	}
	return b.ep.Notify(ctx, string(bridge.OperationListChangedNotificationMethod), &bridge.OperationListChangedNotification{})
}

// UpdateHostContext applies a field-level patch to the host context and
// pushes the patch to the view. Unspecified fields are never cleared. A
// patch applied before the handshake travels with the initialize result; a
// patch applied between the handshake answer and the view's initialized
// notification is parked and flushed on ready, so no update is ever lost.
func (b *AppBridge) UpdateHostContext(ctx context.Context, patch *bridge.HostContextPatch) error {
	if patch == nil {
		return nil
	}
	b.mu.Lock()
	b.hostCtx.Apply(patch)
	if !b.handshakeSnapshotted {
		b.mu.Unlock()
		return nil
	}
	if !b.patchesFlushed {
		b.parkedPatches = append(b.parkedPatches, patch)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	return b.ep.Notify(ctx, string(bridge.HostContextChangedNotificationMethod), patch)
}

// NotifySizeChanged reports host-applied dimensions, typically after a
// display-mode change.
func (b *AppBridge) NotifySizeChanged(ctx context.Context, width, height float64) error {
	if err := b.ensureReady(); err != nil {
		return err
	}
	return b.ep.Notify(ctx, string(bridge.SizeChangedNotificationMethod), &bridge.SizeChanged{Width: width, Height: height})
}

// Teardown asks the view to release its resources and waits up to the
// configured grace period for the ack. Teardown is advisory: grace expiry
// is not an error and the session still proceeds to closed.
func (b *AppBridge) Teardown(ctx context.Context) error {
	if err := b.machine.To(session.StateTearingDown); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.teardownGrace)
	defer cancel()

	var res bridge.TeardownResult
	err := b.ep.Call(callCtx, string(bridge.TeardownMethod), &bridge.TeardownRequest{}, &res)
	switch {
	case err == nil:
		b.log.InfoContext(ctx, "appbridge.teardown.acked", slog.String("session_id", b.sessionID))
	case errors.Is(err, context.DeadlineExceeded):
		b.log.WarnContext(ctx, "appbridge.teardown.grace_expired", slog.String("session_id", b.sessionID))
	default:
		b.log.WarnContext(ctx, "appbridge.teardown.fail", slog.String("err", err.Error()))
	}

	return b.ep.Close()
}

func (b *AppBridge) ensureReady() error {
	if !b.machine.Is(session.StateReady) {
		return bridge.ErrNotReady
	}
	return nil
}
