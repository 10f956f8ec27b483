package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/artifact"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/mesh"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/registry"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

func downstreamAgentServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/agent.json":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"name":"downstream","url":"http://downstream"}`)
		case "/a2a":
			w.Header().Set("Content-Type", "text/event-stream")
			flusher, _ := w.(http.Flusher)
			fmt.Fprint(w, "data: {\"id\":\"task-1\",\"contextId\":\"s1\",\"status\":{\"state\":\"completed\",\"timestamp\":\"2026-01-01T00:00:00Z\"},\"artifacts\":[{\"artifactId\":\"a1\",\"parts\":[{\"kind\":\"file\",\"file\":{\"name\":\"out.png\",\"mime_type\":\"image/png\",\"bytes\":\"aGVsbG8=\"}}]}]}\n\n")
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
}

func TestProxyDispatchRewritesArtifactsAndPublishes(t *testing.T) {
	srv := downstreamAgentServer(t)
	defer srv.Close()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()

	store, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	meshClient := mesh.New(rc)
	reg := registry.New()

	discovery := NewDiscovery([]AgentConfig{{Name: "downstream", URL: srv.URL}})

	p := New(discovery, store, meshClient, reg, "test-app")

	taskCtx := registry.NewTaskContext("task-1", "s1")
	taskCtx.UserIdentity = registry.UserIdentity{ID: "user-1"}
	taskCtx.ReplyToTopic = "reply/task-1"
	require.NoError(t, reg.Create(taskCtx))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, _, subCancel, err := meshClient.Subscribe(ctx, "reply/task-1", "g1", "c1", 10)
	require.NoError(t, err)
	defer subCancel()

	err = p.Dispatch(ctx, taskCtx, "downstream", &types.MessageSendParams{
		Message: types.Message{Role: types.RoleUser, Parts: []types.Part{types.NewTextPart("hi")}},
	})
	require.NoError(t, err)

	select {
	case msg := <-events:
		var envelope types.MeshEventEnvelope
		require.NoError(t, json.Unmarshal(msg.Payload, &envelope))
		assert.Equal(t, types.BufferedEventTask, envelope.Type)
		assert.Contains(t, string(envelope.Payload), "artifact://test-app/user-1/s1/out.png")
		assert.NotContains(t, string(envelope.Payload), "aGVsbG8=")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for republished event")
	}

	manifest := taskCtx.ProducedArtifacts()
	require.Len(t, manifest, 1)
	assert.Equal(t, "out.png", manifest[0].Filename)
}

func TestProxyDispatchUnknownAgentFails(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()
	store, err := artifact.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	meshClient := mesh.New(rc)
	reg := registry.New()
	discovery := NewDiscovery(nil)
	p := New(discovery, store, meshClient, reg, "test-app")

	taskCtx := registry.NewTaskContext("task-2", "s1")
	require.NoError(t, reg.Create(taskCtx))

	err = p.Dispatch(context.Background(), taskCtx, "missing", &types.MessageSendParams{})
	assert.Error(t, err)
}
