package types

import "encoding/json"

// BufferedEventType discriminates the payload stored in a BufferedSSEEvent.
type BufferedEventType string

const (
	BufferedEventStatusUpdate   BufferedEventType = "status-update"
	BufferedEventArtifactUpdate BufferedEventType = "artifact-update"
	BufferedEventTask           BufferedEventType = "task"
	BufferedEventError          BufferedEventType = "error"
)

// BufferedSSEEvent is one row of the persistent SSE event buffer (spec.md
// §3, §4.1). SequenceNumber is strictly monotonic and dense per TaskID,
// starting at 1. ConsumedAtEpoch is nil until a resume cursor passes it.
type BufferedSSEEvent struct {
	TaskID          LogicalTaskID     `json:"taskId"`
	SessionID       SessionID         `json:"sessionId"`
	UserID          string            `json:"userId"`
	SequenceNumber  int64             `json:"sequenceNumber"`
	EventType       BufferedEventType `json:"eventType"`
	EventPayload    json.RawMessage   `json:"eventPayload"`
	CreatedAtEpoch  int64             `json:"createdAtEpoch"`
	ConsumedAtEpoch *int64            `json:"consumedAtEpoch,omitempty"`
}

// IsConsumed reports whether the event has been marked consumed.
func (e BufferedSSEEvent) IsConsumed() bool {
	return e.ConsumedAtEpoch != nil
}

// MeshEventEnvelope wraps one translated event published onto a task's
// reply topic so the receiving hop can discriminate Task from
// TaskStatusUpdateEvent from TaskArtifactUpdateEvent without re-inspecting
// field shape. Produced by the Proxy Component (and the Agent Runtime
// Harness); consumed by the Gateway Component, which is the sole writer of
// the persistent SSE event buffer.
type MeshEventEnvelope struct {
	Type    BufferedEventType `json:"type"`
	Payload json.RawMessage   `json:"payload"`
}
