// Package errors provides the error taxonomy shared by every component of
// the mesh runtime. Kind classifies an error for transport-edge mapping
// (JSON-RPC error codes, HTTP status codes); MeshError carries the kind plus
// enough context to log and map it consistently at each hop.
//
// Usage:
//
//	err := errors.New(errors.NotFound, "eventbuffer", "getBufferedEvents", cause)
//	if errors.Is(err, errors.ContextLimit) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for consistent mapping at protocol edges.
type Kind string

const (
	// TransportError is a network failure reaching the mesh, a downstream
	// HTTP agent, or the database. Retried where idempotent.
	TransportError Kind = "transport"
	// ProtocolError is an envelope parse failure, missing required field,
	// or unknown method. Maps to JSON-RPC InvalidRequest.
	ProtocolError Kind = "protocol"
	// AuthorizationError is a missing or insufficient identity. Maps to
	// HTTP 401/403 and to a JSON-RPC error on the mesh.
	AuthorizationError Kind = "authorization"
	// NotFound is an absent task, session, artifact, or share id. Maps to
	// HTTP 404.
	NotFound Kind = "not_found"
	// ContextLimit is recognized by its textual fingerprint and triggers
	// emergency compaction plus retry.
	ContextLimit Kind = "context_limit"
	// Cancellation is not a failure; it produces a canceled terminal event.
	Cancellation Kind = "cancellation"
	// StorageQuota is surfaced from the artifact store when a quota is
	// exceeded.
	StorageQuota Kind = "storage_quota"
	// CorruptedFile is surfaced from the artifact store when stored bytes
	// fail an integrity check.
	CorruptedFile Kind = "corrupted_file"
	// InternalError is everything else. Logged with a stack, published as
	// JSON-RPC InternalError, nacked on the mesh.
	InternalError Kind = "internal"
)

// MeshError is the structured error type returned by every exported
// operation in this module. It implements error and Unwrap for use with the
// standard errors package.
type MeshError struct {
	Kind      Kind
	Component string
	Operation string
	Details   map[string]any
	Cause     error
}

// New creates a MeshError with the given kind, component, operation, and cause.
func New(kind Kind, component, operation string, cause error) *MeshError {
	return &MeshError{Kind: kind, Component: component, Operation: operation, Cause: cause}
}

func (e *MeshError) Error() string {
	base := fmt.Sprintf("[%s:%s] %s", e.Component, e.Operation, e.Kind)
	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}
	return base
}

// Unwrap returns the underlying cause, enabling errors.Is/errors.As.
func (e *MeshError) Unwrap() error { return e.Cause }

// WithDetails returns e with the given details attached, for chaining at the
// call site: errors.New(...).WithDetails(map[string]any{"task_id": id}).
func (e *MeshError) WithDetails(details map[string]any) *MeshError {
	e.Details = details
	return e
}

// KindOf extracts the Kind from err if it is (or wraps) a *MeshError,
// otherwise returns InternalError as the conservative default.
func KindOf(err error) Kind {
	var me *MeshError
	if errors.As(err, &me) {
		return me.Kind
	}
	return InternalError
}

// Is reports whether err is a MeshError of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a Kind to the HTTP status code used at the gateway's REST edge.
func HTTPStatus(kind Kind) int {
	switch kind {
	case AuthorizationError:
		return 403
	case NotFound:
		return 404
	case ProtocolError:
		return 400
	case StorageQuota:
		return 507
	case CorruptedFile:
		return 422
	case TransportError:
		return 502
	default:
		return 500
	}
}

// contextLimitPhrases are the case-insensitive textual fingerprints that
// identify a BadRequest error as a context-window overflow rather than a
// genuine client error.
var contextLimitPhrases = []string{
	"too many tokens",
	"maximum context length",
	"context length exceeded",
	"input is too long",
	"prompt is too long",
	"token limit",
}

// IsContextLimitMessage reports whether msg matches one of the known
// context-limit textual fingerprints, case-insensitively.
func IsContextLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range contextLimitPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
