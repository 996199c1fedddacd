// Package jsonrpc implements the envelope codec for the bridge protocol:
// a JSON-RPC 2.0 tagged union of request, notification, success response,
// and error response. Parsing validates envelope shape before any handler
// sees the message; serialization is pure.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the JSON-RPC protocol version carried by every envelope.
const ProtocolVersion = "2.0"

// MessageKind classifies a decoded envelope.
type MessageKind string

const (
	KindRequest      MessageKind = "request"
	KindNotification MessageKind = "notification"
	KindResponse     MessageKind = "response"
)

// AnyMessage is a decoded envelope of any kind. Its UnmarshalJSON enforces
// the union shape: a method implies request/notification, otherwise the
// envelope must be a well-formed response.
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Request is a request (ID set) or notification (ID nil).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Response answers exactly one request, carrying either a result or an error.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Error is the wire error descriptor of an error response.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewRequest builds a request envelope with the given correlation id.
func NewRequest(id *RequestID, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPCVersion: ProtocolVersion, Method: method, Params: raw, ID: id}, nil
}

// NewNotification builds a fire-and-forget envelope; it never has an id and
// never receives a response.
func NewNotification(method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPCVersion: ProtocolVersion, Method: method, Params: raw}, nil
}

// NewResultResponse builds a successful response for the given id.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{JSONRPCVersion: ProtocolVersion, Result: raw, ID: id}, nil
}

// NewErrorResponse builds an error response for the given id.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}

// IsNotification reports whether the request envelope expects no response.
func (r *Request) IsNotification() bool { return r.ID.IsNil() }

// UnmarshalJSON decodes and validates an envelope. It rejects version
// mismatches, requests that carry result/error fields, and responses that
// carry neither or both of result and error.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type alias AnyMessage
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if raw.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("invalid JSON-RPC version: expected %q, got %q", ProtocolVersion, raw.JSONRPCVersion)
	}

	hasResult := len(raw.Result) > 0
	hasError := raw.Error != nil

	if raw.Method != "" {
		if hasResult || hasError {
			return fmt.Errorf("request message cannot carry result or error fields")
		}
	} else {
		if hasResult && hasError {
			return fmt.Errorf("response message cannot carry both result and error fields")
		}
		if !hasResult && !hasError {
			return fmt.Errorf("message must carry a method, a result, or an error")
		}
	}

	*m = AnyMessage(raw)
	return nil
}

// Kind reports which member of the union the envelope is.
func (m *AnyMessage) Kind() MessageKind {
	if m.Method != "" {
		if m.ID.IsNil() {
			return KindNotification
		}
		return KindRequest
	}
	return KindResponse
}

// AsRequest reinterprets the envelope as a request/notification, or nil.
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}
	return &Request{JSONRPCVersion: m.JSONRPCVersion, Method: m.Method, Params: m.Params, ID: m.ID}
}

// AsResponse reinterprets the envelope as a response, or nil.
func (m *AnyMessage) AsResponse() *Response {
	if m.Method != "" {
		return nil
	}
	return &Response{JSONRPCVersion: m.JSONRPCVersion, Result: m.Result, Error: m.Error, ID: m.ID}
}
