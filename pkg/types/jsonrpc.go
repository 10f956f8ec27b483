package types

import "encoding/json"

// Legacy dialect method names.
const (
	MethodLegacyTasksSend          = "tasks/send"
	MethodLegacyTasksSendSubscribe = "tasks/sendSubscribe"
	MethodLegacyTasksCancel        = "tasks/cancel"
)

// Modern dialect method names.
const (
	MethodModernMessageSend   = "message/send"
	MethodModernMessageStream = "message/stream"
	MethodModernTasksCancel   = "tasks/cancel"
	MethodModernTasksGet      = "tasks/get"
	MethodModernTaskSubscribe = "tasks/resubscribe"
)

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// Standard JSON-RPC 2.0 error codes used at the protocol edge.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a generic JSON-RPC 2.0 request envelope. Params is kept raw so
// callers can unmarshal into the dialect-specific params type after
// inspecting Method.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      JSONRPCRequestID `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a generic JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      JSONRPCRequestID `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// PushNotificationConfig carries an optional webhook the caller wants
// final-task notifications pushed to, independent of the SSE stream.
type PushNotificationConfig struct {
	URL   string            `json:"url"`
	Token string            `json:"token,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// MessageSendConfiguration is the modern dialect's per-request
// configuration object (spec.md §4.2).
type MessageSendConfiguration struct {
	PushNotificationConfig *PushNotificationConfig `json:"pushNotificationConfig,omitempty"`
	HistoryLength          *int                    `json:"historyLength,omitempty"`
	Blocking               bool                    `json:"blocking"`
}

// MessageSendParams is the modern dialect's message/send and
// message/stream params shape.
type MessageSendParams struct {
	Message       Message                  `json:"message"`
	Configuration MessageSendConfiguration `json:"configuration,omitempty"`
	Metadata      map[string]any           `json:"metadata,omitempty"`
}

// LegacyTaskSendParams is the legacy dialect's tasks/send and
// tasks/sendSubscribe params shape.
type LegacyTaskSendParams struct {
	ID               string                  `json:"id,omitempty"`
	SessionID        string                  `json:"sessionId,omitempty"`
	Message          LegacyMessage           `json:"message"`
	PushNotification *PushNotificationConfig `json:"pushNotification,omitempty"`
	HistoryLength    *int                    `json:"historyLength,omitempty"`
	Metadata         map[string]any          `json:"metadata,omitempty"`
}

// LegacyMessage mirrors the legacy dialect's wire shape: parts use `type`
// instead of `kind`, and file parts nest mimeType under the part itself
// rather than inside a `file` object with `mime_type`.
type LegacyMessage struct {
	Role     string         `json:"role"`
	Parts    []LegacyPart   `json:"parts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// LegacyPart mirrors the legacy wire shape of a Part.
type LegacyPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Bytes    []byte          `json:"bytes,omitempty"`
	URI      string          `json:"uri,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// CancelTaskParams is the (dialect-independent) tasks/cancel params shape.
type CancelTaskParams struct {
	ID string `json:"id"`
}
