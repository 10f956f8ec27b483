package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskState is the terminal/non-terminal lifecycle state of a Task. It
// validates on JSON unmarshal against the known enum, mirroring the
// teacher's TaskState behavior (round-trip tests reject unknown values).
type TaskState string

const (
	TaskSubmitted     TaskState = "submitted"
	TaskWorking       TaskState = "working"
	TaskCompleted     TaskState = "completed"
	TaskFailed        TaskState = "failed"
	TaskCanceled      TaskState = "canceled"
	TaskInputRequired TaskState = "input_required"
)

var validTaskStates = map[TaskState]bool{
	TaskSubmitted:     true,
	TaskWorking:       true,
	TaskCompleted:     true,
	TaskFailed:        true,
	TaskCanceled:      true,
	TaskInputRequired: true,
}

// IsTerminal reports whether the state ends the task's lifecycle.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCanceled
}

func (s TaskState) MarshalJSON() ([]byte, error) {
	if !validTaskStates[s] {
		return nil, fmt.Errorf("invalid task state: %q", string(s))
	}
	return json.Marshal(string(s))
}

func (s *TaskState) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	if !validTaskStates[TaskState(str)] {
		return fmt.Errorf("invalid task state: %q", str)
	}
	*s = TaskState(str)
	return nil
}

// TaskStatus is the status envelope embedded in a Task and in
// TaskStatusUpdateEvent: the current state plus an optional status message.
type TaskStatus struct {
	State     TaskState  `json:"state"`
	Message   *Message   `json:"message,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Task is the terminal server-pushed event: it carries the final status,
// any produced artifacts, and (optionally) the message history.
type Task struct {
	ID        LogicalTaskID `json:"id"`
	ContextID SessionID     `json:"contextId,omitempty"`
	Status    TaskStatus    `json:"status"`
	Artifacts []Artifact    `json:"artifacts,omitempty"`
	History   []Message     `json:"history,omitempty"`
}

// TaskStatusUpdateEvent is a non-terminal server-pushed event. Final=true
// signals that the next event for this task is the terminal Task.
type TaskStatusUpdateEvent struct {
	TaskID    LogicalTaskID `json:"taskId"`
	ContextID SessionID     `json:"contextId,omitempty"`
	Status    TaskStatus    `json:"status"`
	Final     bool          `json:"final"`
}

// TaskArtifactUpdateEvent is a server-pushed event carrying one produced
// artifact, emitted as soon as it is available (streaming delivery of
// large or incremental outputs).
type TaskArtifactUpdateEvent struct {
	TaskID    LogicalTaskID `json:"taskId"`
	ContextID SessionID     `json:"contextId,omitempty"`
	Artifact  Artifact      `json:"artifact"`
}

// validTransitions encodes the legal TaskState state machine, mirroring
// the teacher's runtime/a2a/task_store.go transition table.
var validTransitions = map[TaskState][]TaskState{
	TaskSubmitted:     {TaskWorking, TaskCanceled},
	TaskWorking:       {TaskCompleted, TaskFailed, TaskCanceled, TaskInputRequired},
	TaskInputRequired: {TaskWorking, TaskCanceled},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to TaskState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
