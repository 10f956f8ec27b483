package assembler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

func marshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestProcessStatusUpdateAccumulatesText(t *testing.T) {
	a := New()

	evt1 := types.TaskStatusUpdateEvent{
		TaskID:    "task-1",
		ContextID: "ctx-1",
		Status: types.TaskStatus{
			State: types.TaskWorking,
			Message: &types.Message{
				Parts: []types.Part{types.NewTextPart("Hello, ")},
			},
		},
	}
	msg, text, err := a.ProcessEvent(types.BufferedEventStatusUpdate, marshal(t, evt1))
	require.NoError(t, err)
	assert.Equal(t, "Hello, ", text)
	assert.Equal(t, "Hello, ", msg.Text())
	assert.False(t, msg.IsComplete)

	evt2 := types.TaskStatusUpdateEvent{
		TaskID: "task-1",
		Status: types.TaskStatus{
			State: types.TaskWorking,
			Message: &types.Message{
				Parts: []types.Part{types.NewTextPart("world!")},
			},
		},
		Final: true,
	}
	msg, text, err = a.ProcessEvent(types.BufferedEventStatusUpdate, marshal(t, evt2))
	require.NoError(t, err)
	assert.Equal(t, "world!", text)
	assert.Equal(t, "Hello, world!", msg.Text())
	assert.True(t, msg.IsComplete)
}

func TestProcessStatusUpdateAgentProgress(t *testing.T) {
	a := New()
	dataPart, err := types.NewDataPart(map[string]any{
		"type":        "agent_progress_update",
		"status_text": "Thinking...",
	})
	require.NoError(t, err)

	evt := types.TaskStatusUpdateEvent{
		TaskID: "task-1",
		Status: types.TaskStatus{
			State:   types.TaskWorking,
			Message: &types.Message{Parts: []types.Part{dataPart}},
		},
	}
	msg, _, err := a.ProcessEvent(types.BufferedEventStatusUpdate, marshal(t, evt))
	require.NoError(t, err)
	assert.Equal(t, "Thinking...", msg.StatusText)
}

func TestArtifactCreationProgressMergesByFilename(t *testing.T) {
	a := New()

	first, err := types.NewDataPart(map[string]any{
		"type":              "artifact_creation_progress",
		"filename":          "report.pdf",
		"status":            "in_progress",
		"bytes_transferred": 100,
	})
	require.NoError(t, err)
	evt1 := types.TaskStatusUpdateEvent{
		TaskID: "task-1",
		Status: types.TaskStatus{
			State:   types.TaskWorking,
			Message: &types.Message{Parts: []types.Part{first}},
		},
	}
	msg, _, err := a.ProcessEvent(types.BufferedEventStatusUpdate, marshal(t, evt1))
	require.NoError(t, err)
	require.Len(t, msg.Artifacts, 1)
	assert.Equal(t, "report.pdf", msg.Artifacts[0].Filename)
	assert.Equal(t, int64(100), msg.Artifacts[0].BytesTransferred)

	second, err := types.NewDataPart(map[string]any{
		"type":              "artifact_creation_progress",
		"filename":          "report.pdf",
		"status":            "complete",
		"bytes_transferred": 4096,
		"mime_type":         "application/pdf",
	})
	require.NoError(t, err)
	evt2 := types.TaskStatusUpdateEvent{
		TaskID: "task-1",
		Status: types.TaskStatus{
			State:   types.TaskWorking,
			Message: &types.Message{Parts: []types.Part{second}},
		},
	}
	msg, _, err = a.ProcessEvent(types.BufferedEventStatusUpdate, marshal(t, evt2))
	require.NoError(t, err)
	require.Len(t, msg.Artifacts, 1)
	assert.Equal(t, "complete", msg.Artifacts[0].Status)
	assert.Equal(t, int64(4096), msg.Artifacts[0].BytesTransferred)
	assert.Equal(t, "application/pdf", msg.Artifacts[0].MimeType)
}

func TestArtifactUpdateMergeByFilename(t *testing.T) {
	a := New()

	evt := types.TaskArtifactUpdateEvent{
		TaskID:   "task-1",
		Artifact: types.Artifact{Name: "out.png", MimeType: "image/png"},
	}
	msg, _, err := a.ProcessEvent(types.BufferedEventArtifactUpdate, marshal(t, evt))
	require.NoError(t, err)
	require.Len(t, msg.Artifacts, 1)
	assert.Equal(t, "out.png", msg.Artifacts[0].Filename)

	evt2 := types.TaskArtifactUpdateEvent{
		TaskID:   "task-1",
		Artifact: types.Artifact{Name: "out.png", Description: "a picture"},
	}
	msg, _, err = a.ProcessEvent(types.BufferedEventArtifactUpdate, marshal(t, evt2))
	require.NoError(t, err)
	require.Len(t, msg.Artifacts, 1)
	assert.Equal(t, "a picture", msg.Artifacts[0].Description)
}

func TestArtifactUpdateGeneratesNameWhenMissing(t *testing.T) {
	a := New()
	evt := types.TaskArtifactUpdateEvent{
		TaskID:   "task-1",
		Artifact: types.Artifact{MimeType: "text/plain"},
	}
	msg, _, err := a.ProcessEvent(types.BufferedEventArtifactUpdate, marshal(t, evt))
	require.NoError(t, err)
	require.Len(t, msg.Artifacts, 1)
	assert.Equal(t, "artifact-1", msg.Artifacts[0].Filename)
}

func TestFinalTaskFailedExtractsErrorMessage(t *testing.T) {
	a := New()
	task := types.Task{
		ID: "task-1",
		Status: types.TaskStatus{
			State: types.TaskFailed,
			Message: &types.Message{
				Parts: []types.Part{types.NewTextPart("downstream timed out")},
			},
		},
	}
	msg, text, err := a.ProcessEvent(types.BufferedEventTask, marshal(t, task))
	require.NoError(t, err)
	assert.True(t, msg.IsComplete)
	assert.True(t, msg.IsError)
	assert.Equal(t, "downstream timed out", msg.ErrorMessage)
	assert.Equal(t, "Task failed: downstream timed out", text)
}

func TestFinalTaskCompletedIsNotError(t *testing.T) {
	a := New()
	task := types.Task{
		ID:     "task-1",
		Status: types.TaskStatus{State: types.TaskCompleted},
	}
	msg, text, err := a.ProcessEvent(types.BufferedEventTask, marshal(t, task))
	require.NoError(t, err)
	assert.True(t, msg.IsComplete)
	assert.False(t, msg.IsError)
	assert.Empty(t, text)
}

func TestRPCErrorEvent(t *testing.T) {
	a := New()
	msg, text, err := a.ProcessEvent(types.BufferedEventError, marshal(t, map[string]string{"message": "boom"}))
	require.NoError(t, err)
	assert.True(t, msg.IsComplete)
	assert.True(t, msg.IsError)
	assert.Equal(t, "boom", msg.ErrorMessage)
	assert.Equal(t, "Error: boom", text)
}

func TestReset(t *testing.T) {
	a := New()
	task := types.Task{ID: "task-1", Status: types.TaskStatus{State: types.TaskCompleted}}
	_, _, err := a.ProcessEvent(types.BufferedEventTask, marshal(t, task))
	require.NoError(t, err)

	a.Reset()
	msg := a.snapshot()
	assert.False(t, msg.IsComplete)
	assert.Empty(t, msg.TextParts)
	assert.Empty(t, msg.Artifacts)
}
