// Package types defines the core A2A data model shared by every component:
// task identifiers, messages, parts, artifacts, task lifecycle events, the
// JSON-RPC envelope, and agent/skill descriptors. Both the legacy and
// modern protocol dialects are represented here; pkg/translate converts
// between them.
package types

// LogicalTaskID is the stable identifier for a task across every hop. It is
// created by the originating component (gateway or proxy) before the first
// publish and is never rewritten downstream.
type LogicalTaskID string

// JSONRPCRequestID is the envelope-level id used for request/response
// correlation at a single hop. A proxy rewrites this id when forwarding but
// must preserve the LogicalTaskID embedded in params/results.
type JSONRPCRequestID = any

// SessionID (aka ContextId) groups related tasks into one conversation.
// Artifacts are keyed by (AppName, UserID, SessionID, Filename, Version).
type SessionID string
