// Package bridge defines the wire vocabulary of the view/host bridge
// protocol: method names, capability sets, the host context snapshot and
// its patch form, and the parameter/result payloads exchanged between a
// sandboxed view and the trusted host that embeds it.
//
// The package contains no behavior beyond payload shaping. The view-side
// implementation lives in package app, the host-side implementation in
// package appbridge, and the envelope codec in internal/jsonrpc.
package bridge
