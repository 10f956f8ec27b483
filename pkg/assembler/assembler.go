// Package assembler reassembles a streamed A2A event sequence into a single
// coherent message, mirroring how a client-side chat view accumulates text
// and artifact progress across status updates before the terminal Task
// arrives.
package assembler

import (
	"encoding/json"
	"strconv"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// ArtifactProgress tracks one artifact's delivery across possibly many
// artifact_creation_progress data parts and artifact-update events, merged
// by filename.
type ArtifactProgress struct {
	Filename         string         `json:"filename"`
	Status           string         `json:"status,omitempty"`
	BytesTransferred int64          `json:"bytesTransferred,omitempty"`
	MimeType         string         `json:"mimeType,omitempty"`
	Description      string         `json:"description,omitempty"`
	Version          int            `json:"version,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// AssembledMessage is the accumulated, read-only view of everything
// observed so far for one task's event stream.
type AssembledMessage struct {
	TextParts    []string
	Artifacts    []ArtifactProgress
	IsComplete   bool
	IsError      bool
	ErrorMessage string
	TaskID       types.LogicalTaskID
	ContextID    types.SessionID
	StatusText   string
}

// Text returns the full accumulated text across all status updates.
func (m AssembledMessage) Text() string {
	out := ""
	for _, p := range m.TextParts {
		out += p
	}
	return out
}

// Assembler accumulates BufferedSSEEvent payloads into an AssembledMessage.
// Not safe for concurrent use; one Assembler belongs to one task stream.
type Assembler struct {
	textParts    []string
	artifacts    []ArtifactProgress
	isComplete   bool
	isError      bool
	errorMessage string
	taskID       types.LogicalTaskID
	contextID    types.SessionID
	statusText   string
}

// New creates an empty Assembler.
func New() *Assembler {
	return &Assembler{}
}

// Reset clears all accumulated state, for reuse across a new task stream.
func (a *Assembler) Reset() {
	*a = Assembler{}
}

// ProcessEvent applies one buffered SSE event to the assembler's state and
// returns the updated snapshot along with any newly produced display text
// (empty if this event contributed none).
func (a *Assembler) ProcessEvent(eventType types.BufferedEventType, payload json.RawMessage) (AssembledMessage, string, error) {
	var newText string
	var err error

	switch eventType {
	case types.BufferedEventStatusUpdate:
		newText, err = a.processStatusUpdate(payload)
	case types.BufferedEventArtifactUpdate:
		err = a.processArtifactUpdate(payload)
	case types.BufferedEventTask:
		newText, err = a.processFinalTask(payload)
	case types.BufferedEventError:
		newText, err = a.processError(payload)
	}

	return a.snapshot(), newText, err
}

type rpcError struct {
	Message string `json:"message"`
}

func (a *Assembler) processError(payload json.RawMessage) (string, error) {
	var e rpcError
	if err := json.Unmarshal(payload, &e); err != nil {
		return "", err
	}
	a.isError = true
	a.isComplete = true
	if e.Message == "" {
		e.Message = "Unknown error"
	}
	a.errorMessage = e.Message
	return "Error: " + e.Message, nil
}

func (a *Assembler) processStatusUpdate(payload json.RawMessage) (string, error) {
	var evt types.TaskStatusUpdateEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return "", err
	}
	a.taskID = evt.TaskID
	a.contextID = evt.ContextID

	var collected string
	if evt.Status.Message != nil {
		for _, part := range evt.Status.Message.Parts {
			switch part.Kind {
			case types.PartKindText:
				if part.Text != "" {
					a.textParts = append(a.textParts, part.Text)
					collected += part.Text
				}
			case types.PartKindData:
				if err := a.processProgressData(part.Data); err != nil {
					return "", err
				}
			}
		}
	}

	if evt.Final {
		a.isComplete = true
	}

	return collected, nil
}

type progressData struct {
	Type             string `json:"type"`
	StatusText       string `json:"status_text"`
	Filename         string `json:"filename"`
	Status           string `json:"status"`
	BytesTransferred int64  `json:"bytes_transferred"`
	MimeType         string `json:"mime_type"`
	Description      string `json:"description"`
}

func (a *Assembler) processProgressData(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var d progressData
	if err := json.Unmarshal(raw, &d); err != nil {
		// Not every data part follows the progress schema; ignore silently.
		return nil
	}

	switch d.Type {
	case "agent_progress_update":
		if d.StatusText != "" {
			a.statusText = d.StatusText
		} else {
			a.statusText = "Processing..."
		}
	case "artifact_creation_progress":
		if d.Filename != "" {
			a.upsertArtifactProgress(d)
		}
	}
	return nil
}

func (a *Assembler) upsertArtifactProgress(d progressData) {
	for i := range a.artifacts {
		if a.artifacts[i].Filename == d.Filename {
			a.artifacts[i].Status = d.Status
			if d.BytesTransferred > 0 {
				a.artifacts[i].BytesTransferred = d.BytesTransferred
			}
			if d.MimeType != "" {
				a.artifacts[i].MimeType = d.MimeType
			}
			if d.Description != "" {
				a.artifacts[i].Description = d.Description
			}
			return
		}
	}
	a.artifacts = append(a.artifacts, ArtifactProgress{
		Filename:         d.Filename,
		Status:           d.Status,
		BytesTransferred: d.BytesTransferred,
		MimeType:         d.MimeType,
		Description:      d.Description,
	})
}

func (a *Assembler) processArtifactUpdate(payload json.RawMessage) error {
	var evt types.TaskArtifactUpdateEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}

	name := evt.Artifact.Name
	if name == "" {
		// Open Question #3 decision: assign a generated name so nameless
		// artifacts still merge coherently across repeated updates.
		name = a.generatedArtifactName()
	}

	for i := range a.artifacts {
		if a.artifacts[i].Filename == name {
			a.artifacts[i].MimeType = evt.Artifact.MimeType
			a.artifacts[i].Description = evt.Artifact.Description
			return nil
		}
	}
	a.artifacts = append(a.artifacts, ArtifactProgress{
		Filename:    name,
		MimeType:    evt.Artifact.MimeType,
		Description: evt.Artifact.Description,
	})
	return nil
}

// generatedArtifactName assigns the next 1-based positional name to a
// nameless artifact (Open Question #3 decision).
func (a *Assembler) generatedArtifactName() string {
	return "artifact-" + strconv.Itoa(len(a.artifacts)+1)
}

func (a *Assembler) processFinalTask(payload json.RawMessage) (string, error) {
	var task types.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return "", err
	}
	a.taskID = task.ID
	a.contextID = task.ContextID
	a.isComplete = true

	if task.Status.State != types.TaskFailed {
		return "", nil
	}

	a.isError = true
	if task.Status.Message != nil {
		for _, part := range task.Status.Message.Parts {
			if part.Kind == types.PartKindText && part.Text != "" {
				a.errorMessage = part.Text
				return "Task failed: " + part.Text, nil
			}
		}
	}
	a.errorMessage = "Unknown error"
	return "Task failed: Unknown error", nil
}

func (a *Assembler) snapshot() AssembledMessage {
	textParts := make([]string, len(a.textParts))
	copy(textParts, a.textParts)
	artifacts := make([]ArtifactProgress, len(a.artifacts))
	copy(artifacts, a.artifacts)

	return AssembledMessage{
		TextParts:    textParts,
		Artifacts:    artifacts,
		IsComplete:   a.isComplete,
		IsError:      a.isError,
		ErrorMessage: a.errorMessage,
		TaskID:       a.taskID,
		ContextID:    a.contextID,
		StatusText:   a.statusText,
	}
}
