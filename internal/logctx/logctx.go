// Package logctx enriches slog records with bridge session and rpc
// attribute groups carried through context.
package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates another slog.Handler, attaching session and rpc groups
// from context values when present.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
			slog.String("peer", sd.Peer),
			slog.String("protocol_version", sd.ProtocolVersion),
		))
	}

	if msg, ok := ctx.Value(rpcMsgKey{}).(*RPCMessage); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
			slog.String("type", msg.Type),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type rpcMsgKey struct{}

// RPCMessage identifies the envelope being processed.
type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

// WithRPCMessage attaches envelope identity to the context.
func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcMsgKey{}, msg)
}

type sessionDataKey struct{}

// SessionData identifies the bridge session a record belongs to.
type SessionData struct {
	SessionID       string
	Peer            string // "view" or "host"
	ProtocolVersion string
}

// WithSessionData attaches session identity to the context.
func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}
