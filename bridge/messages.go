package bridge

import "encoding/json"

// InitializeRequest opens the handshake. Sent by the view as the first
// message on a fresh transport.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ViewCapabilities   `json:"capabilities"`
	ViewInfo        ImplementationInfo `json:"viewInfo"`
}

// InitializeResult is the host's handshake answer: negotiated version, host
// identity and capabilities, and the initial host context.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    HostCapabilities   `json:"capabilities"`
	HostInfo        ImplementationInfo `json:"hostInfo"`
	HostContext     HostContext        `json:"hostContext"`
}

// InitializedNotification confirms the view is ready to receive pushed
// data. The session is ready only after the host observes it.
type InitializedNotification struct{}

// OperationInput carries the final arguments for the active operation.
type OperationInput struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// OperationInputPartial carries streamed, structurally healed arguments.
// The payload is preview data: brackets and braces may have been
// auto-closed, so it must never be acted on as final.
type OperationInputPartial struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// OperationResult delivers an operation outcome: the model-facing content
// plus an optional structured representation intended for rendering.
type OperationResult struct {
	Content           []ContentBlock  `json:"content,omitempty"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitzero"`
}

// OperationCancelled announces that the active operation was cancelled.
type OperationCancelled struct {
	Reason string `json:"reason,omitzero"`
}

// OperationListChangedNotification signals a live change to the backend's
// operation list. Sent only to views that declared the matching capability.
type OperationListChangedNotification struct{}

// SizeChanged reports dimensions, in CSS pixels. From the view it is the
// preferred rendered size; from the host it is the applied size after a
// display-mode change.
type SizeChanged struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SendMessageRequest posts a conversational message on the view's behalf.
type SendMessageRequest struct {
	Content []ContentBlock `json:"content"`
}

// SendMessageResult flags whether the host accepted the message.
type SendMessageResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitzero"`
}

// OpenLinkRequest asks the host to open a URL outside the view.
type OpenLinkRequest struct {
	URL string `json:"url"`
}

// OpenLinkResult flags whether the host opened the link.
type OpenLinkResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitzero"`
}

// InvokeOperationRequest proxies a named backend operation call through the host.
type InvokeOperationRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ReadResourceRequest proxies a named backend resource read through the host.
type ReadResourceRequest struct {
	URI string `json:"uri"`
}

// ReadResourceResult returns the proxied resource contents unchanged.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// RequestDisplayModeRequest asks for a presentation change. Advisory: the
// host decides unilaterally and reports the mode actually applied.
type RequestDisplayModeRequest struct {
	Mode DisplayMode `json:"mode"`
}

// RequestDisplayModeResult carries the mode the host applied, which may
// differ from the requested one.
type RequestDisplayModeResult struct {
	Mode DisplayMode `json:"mode"`
}

// TeardownRequest asks the view to release its resources before the host
// discards the rendered surface. The view answers with an empty ack.
type TeardownRequest struct{}

// TeardownResult is the empty teardown acknowledgment.
type TeardownResult struct{}

// LogMessage forwards a view-side log record to a host that accepts them.
type LogMessage struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
	Data    any      `json:"data,omitempty"`
}

// ModelContextUpdate pushes context the backend-facing model should see,
// decoupled from any operation result. Best-effort: hosts without the
// modelContext capability drop it.
type ModelContextUpdate struct {
	Content []ContentBlock `json:"content"`
}
