package translate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// TestInboundLegacyToModern mirrors spec.md §8 scenario 5: legacy→modern
// inbound translation.
func TestInboundLegacyToModern(t *testing.T) {
	legacy := &types.Request{
		JSONRPC: "2.0",
		ID:      float64(42),
		Method:  types.MethodLegacyTasksSendSubscribe,
		Params: json.RawMessage(`{
			"sessionId": "S2",
			"message": {"role": "user", "parts": [{"type": "text", "text": "Hi"}]}
		}`),
	}

	result, err := TranslateInbound(legacy, true)
	require.NoError(t, err)

	assert.Equal(t, types.MethodModernMessageStream, result.Method)
	assert.Equal(t, float64(42), result.EnvelopeID)
	assert.Equal(t, types.SessionID("S2"), result.Params.Message.ContextID)
	assert.Nil(t, result.Params.Message.TaskID)
	require.Len(t, result.Params.Message.Parts, 1)
	assert.Equal(t, types.PartKindText, result.Params.Message.Parts[0].Kind)
	assert.Equal(t, "Hi", result.Params.Message.Parts[0].Text)
	assert.True(t, result.Params.Configuration.Blocking)
}

func TestInboundExistingTaskKeepsID(t *testing.T) {
	legacy := &types.Request{
		ID:     "req-1",
		Method: types.MethodLegacyTasksSend,
		Params: json.RawMessage(`{
			"id": "task-99",
			"sessionId": "S1",
			"message": {"role": "user", "parts": [{"type": "text", "text": "again"}]}
		}`),
	}

	result, err := TranslateInbound(legacy, false)
	require.NoError(t, err)
	require.NotNil(t, result.Params.Message.TaskID)
	assert.Equal(t, types.LogicalTaskID("task-99"), *result.Params.Message.TaskID)
}

func TestInboundCancelPassthrough(t *testing.T) {
	legacy := &types.Request{
		ID:     "req-2",
		Method: types.MethodLegacyTasksCancel,
		Params: json.RawMessage(`{"id": "task-5"}`),
	}

	result, err := TranslateInbound(legacy, false)
	require.NoError(t, err)
	assert.Equal(t, types.MethodModernTasksCancel, result.Method)
	require.NotNil(t, result.CancelParams)
	assert.Equal(t, "task-5", result.CancelParams.ID)
}

func TestInboundUnknownMethodErrors(t *testing.T) {
	legacy := &types.Request{Method: "bogus/method"}
	_, err := TranslateInbound(legacy, false)
	assert.Error(t, err)
}

// TestInboundModernMethodPassesThrough covers spec.md §4.4 dispatch step 3:
// the Proxy calls the inbound translator unconditionally on every request,
// so a request that already arrives in the modern dialect must be
// returned unchanged rather than rejected as "untranslatable".
func TestInboundModernMethodPassesThrough(t *testing.T) {
	req := &types.Request{
		ID:     "req-3",
		Method: types.MethodModernMessageSend,
		Params: json.RawMessage(`{
			"message": {"role": "user", "contextId": "S3", "parts": [{"kind": "text", "text": "hi"}]}
		}`),
	}

	result, err := TranslateInbound(req, false)
	require.NoError(t, err)
	assert.Equal(t, types.MethodModernMessageSend, result.Method)
	require.NotNil(t, result.Params)
	assert.Equal(t, types.SessionID("S3"), result.Params.Message.ContextID)
}

func TestInboundModernCancelPassesThrough(t *testing.T) {
	req := &types.Request{
		ID:     "req-4",
		Method: types.MethodModernTasksCancel,
		Params: json.RawMessage(`{"id": "task-7"}`),
	}

	result, err := TranslateInbound(req, false)
	require.NoError(t, err)
	assert.Equal(t, types.MethodModernTasksCancel, result.Method)
	require.NotNil(t, result.CancelParams)
	assert.Equal(t, "task-7", result.CancelParams.ID)
}

func TestOutboundTaskRenamesContextAndParts(t *testing.T) {
	task := &types.Task{
		ID:        "task-1",
		ContextID: "S1",
		Status: types.TaskStatus{
			State: types.TaskCompleted,
			Message: &types.Message{
				Role:  types.RoleModel,
				Parts: []types.Part{types.NewTextPart("done")},
			},
		},
	}

	m, err := TranslateOutboundEvent(task)
	require.NoError(t, err)
	assert.Equal(t, "S1", m["sessionId"])
	_, hasContextID := m["contextId"]
	assert.False(t, hasContextID)

	status := m["status"].(map[string]any)
	message := status["message"].(map[string]any)
	parts := message["parts"].([]any)
	part := parts[0].(map[string]any)
	assert.Equal(t, "text", part["type"])
	_, hasKind := part["kind"]
	assert.False(t, hasKind)
}

func TestOutboundStatusUpdateDropsContextID(t *testing.T) {
	ev := &types.TaskStatusUpdateEvent{
		TaskID:    "task-1",
		ContextID: "S1",
		Status:    types.TaskStatus{State: types.TaskWorking},
	}

	m, err := TranslateOutboundEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, "task-1", m["id"])
	_, hasTaskID := m["taskId"]
	assert.False(t, hasTaskID)
	_, hasContextID := m["contextId"]
	assert.False(t, hasContextID)
}

func TestOutboundArtifactUpdateRewritesParts(t *testing.T) {
	ev := &types.TaskArtifactUpdateEvent{
		TaskID: "task-1",
		Artifact: types.Artifact{
			ArtifactID: "artifact-1",
			Parts: []types.Part{
				types.NewFilePart(types.FileContent{MimeType: "image/png", URI: "artifact://app/u/s/f.png?version=1"}),
			},
		},
	}

	m, err := TranslateOutboundEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, "task-1", m["id"])
	artifact := m["artifact"].(map[string]any)
	parts := artifact["parts"].([]any)
	part := parts[0].(map[string]any)
	assert.Equal(t, "file", part["type"])
	assert.Equal(t, "image/png", part["mimeType"])
	assert.Equal(t, "artifact://app/u/s/f.png?version=1", part["uri"])
	_, hasFile := part["file"]
	assert.False(t, hasFile)
}
