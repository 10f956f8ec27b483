package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/artifact"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/eventbuffer"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/mesh"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/registry"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

func newTestGateway(t *testing.T) (*Gateway, *mesh.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	meshClient := mesh.New(rc, mesh.WithPrefix("sam"))
	buf := eventbuffer.New(rc, eventbuffer.WithHybridMode(50), eventbuffer.WithQueueSize(100), eventbuffer.WithBatch(10, 50*time.Millisecond))
	t.Cleanup(buf.Close)

	store, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	return New(Config{Namespace: "sam", AppName: "gw-app"}, registry.New(), buf, meshClient, store), meshClient
}

func TestSubmitTaskPublishesRequestWithReplyTopic(t *testing.T) {
	gw, meshClient := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reqTopic := AgentRequestTopic("sam", "agent-x")
	events, _, subCancel, err := meshClient.Subscribe(ctx, reqTopic, "g1", "c1", 10)
	require.NoError(t, err)
	defer subCancel()

	taskID, err := gw.SubmitTask(ctx, SubmitInput{
		TargetAgentName: "agent-x",
		MessageParts:    []types.Part{types.NewTextPart("hello")},
		SessionID:       "s1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	select {
	case msg := <-events:
		var req types.Request
		require.NoError(t, json.Unmarshal(msg.Payload, &req))
		assert.Equal(t, types.MethodModernMessageSend, req.Method)

		var params types.MessageSendParams
		require.NoError(t, json.Unmarshal(req.Params, &params))
		replyTopic, ok := params.Metadata["replyToTopic"].(string)
		assert.True(t, ok)
		assert.NotEmpty(t, replyTopic)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published request")
	}
}

func TestCancelSetsCancellationAndPublishes(t *testing.T) {
	gw, meshClient := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	taskCtx := registry.NewTaskContext("t1", "s1")
	require.NoError(t, gw.registry.Create(taskCtx))

	reqTopic := AgentRequestTopic("sam", "agent-x")
	events, _, subCancel, err := meshClient.Subscribe(ctx, reqTopic, "g1", "c1", 10)
	require.NoError(t, err)
	defer subCancel()

	require.NoError(t, gw.Cancel(ctx, "t1", "agent-x"))
	assert.True(t, taskCtx.Cancellation.Canceled())

	select {
	case msg := <-events:
		var req types.Request
		require.NoError(t, json.Unmarshal(msg.Payload, &req))
		assert.Equal(t, types.MethodModernTasksCancel, req.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancel publish")
	}
}

func TestHandleIncomingEnrichesTerminalTaskWithArtifactManifest(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	taskCtx := registry.NewTaskContext("t1", "s1")
	taskCtx.UserIdentity = registry.UserIdentity{ID: "user-1"}
	taskCtx.AppNameForArtifacts = "gw-app"
	taskCtx.AddProducedArtifact("out.png", 1)
	require.NoError(t, gw.registry.Create(taskCtx))
	require.NoError(t, gw.buffer.SetTaskMetadata(ctx, "t1", "s1", "user-1"))

	task := types.Task{
		ID:        "t1",
		ContextID: "s1",
		Status: types.TaskStatus{
			State:     types.TaskCompleted,
			Timestamp: time.Now(),
			Message:   &types.Message{Role: types.RoleModel, Parts: []types.Part{types.NewTextPart("done")}},
		},
	}
	payload, err := json.Marshal(task)
	require.NoError(t, err)
	envelope, err := json.Marshal(types.MeshEventEnvelope{Type: types.BufferedEventTask, Payload: payload})
	require.NoError(t, err)

	terminal := gw.handleIncoming(ctx, taskCtx, envelope)
	assert.True(t, terminal)

	buffered, err := gw.buffer.GetBufferedEvents(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, buffered, 1)

	var stored types.Task
	require.NoError(t, json.Unmarshal(buffered[0].EventPayload, &stored))
	assert.Contains(t, stored.Status.Message.Text(), "artifact://gw-app/user-1/s1/out.png")
}

func TestHandleIncomingLeavesNonTerminalEventUnmodified(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	taskCtx := registry.NewTaskContext("t2", "s1")
	taskCtx.AddProducedArtifact("out.png", 1)
	require.NoError(t, gw.registry.Create(taskCtx))

	update := types.TaskStatusUpdateEvent{TaskID: "t2", Status: types.TaskStatus{State: types.TaskWorking, Timestamp: time.Now()}, Final: false}
	payload, err := json.Marshal(update)
	require.NoError(t, err)
	envelope, err := json.Marshal(types.MeshEventEnvelope{Type: types.BufferedEventStatusUpdate, Payload: payload})
	require.NoError(t, err)

	terminal := gw.handleIncoming(ctx, taskCtx, envelope)
	assert.False(t, terminal)
}

// TestHandleLegacyA2APublishesTranslatedModernRequest covers spec.md §4.2's
// inbound translation as exercised through the gateway's legacy REST
// endpoint: a legacy tasks/send envelope must result in a modern
// message/send request published to the agent's request topic.
func TestHandleLegacyA2APublishesTranslatedModernRequest(t *testing.T) {
	gw, meshClient := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reqTopic := AgentRequestTopic("sam", "agent-x")
	events, _, subCancel, err := meshClient.Subscribe(ctx, reqTopic, "g1", "c1", 10)
	require.NoError(t, err)
	defer subCancel()

	body := `{
		"jsonrpc": "2.0",
		"id": "legacy-1",
		"method": "tasks/send",
		"params": {
			"sessionId": "s1",
			"message": {"role": "user", "parts": [{"type": "text", "text": "hi"}]}
		}
	}`
	req := httptest.NewRequest("POST", "/api/v1/a2a/legacy?agent=agent-x", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	gw.Router().ServeHTTP(w, req)

	require.Equal(t, 202, w.Code)

	select {
	case msg := <-events:
		var published types.Request
		require.NoError(t, json.Unmarshal(msg.Payload, &published))
		assert.Equal(t, types.MethodModernMessageSend, published.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published request")
	}
}

func TestTranslateEventForDialectRewritesTaskToLegacyShape(t *testing.T) {
	task := types.Task{
		ID:        "t1",
		ContextID: "s1",
		Status: types.TaskStatus{
			State:   types.TaskCompleted,
			Message: &types.Message{Role: types.RoleModel, Parts: []types.Part{types.NewTextPart("done")}},
		},
	}
	payload, err := json.Marshal(task)
	require.NoError(t, err)

	rewritten := translateEventForDialect(types.BufferedEventTask, payload, true)

	var legacyShape map[string]any
	require.NoError(t, json.Unmarshal(rewritten, &legacyShape))
	assert.Equal(t, "s1", legacyShape["sessionId"])
	_, hasContextID := legacyShape["contextId"]
	assert.False(t, hasContextID)
}

func TestTranslateEventForDialectLeavesModernPayloadUntouched(t *testing.T) {
	payload := []byte(`{"id":"t1","contextId":"s1"}`)
	assert.Equal(t, payload, translateEventForDialect(types.BufferedEventTask, payload, false))
}
