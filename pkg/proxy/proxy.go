package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/artifact"
	sameerrors "github.com/SolaceLabs/solace-agent-mesh-core/pkg/errors"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/mesh"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/registry"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// hardRequestTimeout is the maximum time a single downstream request may
// run before the proxy cancels it (spec.md §5: 300s hard timeout).
const hardRequestTimeout = 300 * time.Second

// Proxy bridges mesh task requests to a fixed set of standard
// A2A-over-HTTPS downstream agents (spec.md §4.4), rewriting outbound
// artifacts through its own artifact store and republishing translated
// events back onto the mesh. The Proxy never writes the persistent SSE
// event buffer itself — that is the Gateway Component's exclusive
// responsibility (spec.md §4.1, §4.5); the Proxy only publishes an envelope
// the Gateway can buffer and fan out.
type Proxy struct {
	discovery *Discovery
	artifacts artifact.Store
	mesh      *mesh.Client
	registry  *registry.Registry

	appName string
}

// New creates a Proxy.
func New(discovery *Discovery, artifacts artifact.Store, meshClient *mesh.Client, reg *registry.Registry, appName string) *Proxy {
	return &Proxy{
		discovery: discovery,
		artifacts: artifacts,
		mesh:      meshClient,
		registry:  reg,
		appName:   appName,
	}
}

// Dispatch forwards params to agentName, streaming the response back onto
// the mesh on taskCtx.ReplyToTopic, where the Gateway buffers each event so
// a disconnected client can resume. A stream that cannot be started or that
// outlives hardRequestTimeout ends with a published failed Task; a
// cancellation observed between events sends tasks/cancel downstream and
// ends with a published canceled Task.
func (p *Proxy) Dispatch(ctx context.Context, taskCtx *registry.TaskContext, agentName string, params *types.MessageSendParams) error {
	client := p.discovery.Client(agentName)
	if client == nil {
		return sameerrors.New(sameerrors.NotFound, "proxy", "Dispatch", fmt.Errorf("agent %q is not configured", agentName))
	}

	ctx, cancel := context.WithTimeout(ctx, hardRequestTimeout)
	defer cancel()

	events, err := client.SendMessageStream(ctx, params)
	if err != nil {
		return p.publishFailure(ctx, taskCtx, err)
	}

	for {
		select {
		case <-ctx.Done():
			return p.publishFailure(context.Background(), taskCtx, ctx.Err())

		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if taskCtx.Cancellation.Canceled() {
				_ = client.CancelTask(context.Background(), string(taskCtx.LogicalTaskID))
				return p.publish(ctx, taskCtx, types.BufferedEventTask, &types.Task{
					ID:        taskCtx.LogicalTaskID,
					ContextID: taskCtx.SessionID,
					Status:    types.TaskStatus{State: types.TaskCanceled, Timestamp: time.Now()},
				})
			}
			if err := p.handleEvent(ctx, taskCtx, evt); err != nil {
				logger.Error("proxy dispatch: failed to handle downstream event", "task_id", taskCtx.LogicalTaskID, "error", err)
			}
		}
	}
}

// handleEvent rewrites outbound artifacts and forces every event's task
// identifier back to taskCtx.LogicalTaskID before publishing (spec.md §4.4
// response-handling step 3), preventing a downstream agent's own renaming
// of the task from leaking past the proxy.
func (p *Proxy) handleEvent(ctx context.Context, taskCtx *registry.TaskContext, evt StreamEvent) error {
	switch {
	case evt.Task != nil:
		rewritten, err := p.rewriteArtifacts(ctx, taskCtx, evt.Task.Artifacts)
		if err != nil {
			return err
		}
		evt.Task.Artifacts = rewritten
		evt.Task.ID = taskCtx.LogicalTaskID
		return p.publish(ctx, taskCtx, types.BufferedEventTask, evt.Task)

	case evt.ArtifactUpdate != nil:
		rewritten, err := p.rewriteArtifacts(ctx, taskCtx, []types.Artifact{evt.ArtifactUpdate.Artifact})
		if err != nil {
			return err
		}
		evt.ArtifactUpdate.Artifact = rewritten[0]
		evt.ArtifactUpdate.TaskID = taskCtx.LogicalTaskID
		return p.publish(ctx, taskCtx, types.BufferedEventArtifactUpdate, evt.ArtifactUpdate)

	case evt.StatusUpdate != nil:
		evt.StatusUpdate.TaskID = taskCtx.LogicalTaskID
		return p.publish(ctx, taskCtx, types.BufferedEventStatusUpdate, evt.StatusUpdate)
	}
	return nil
}

// publish wraps payload in a MeshEventEnvelope (so the receiving Gateway
// can discriminate its shape) and publishes it to the task's reply topic.
// The Proxy does not itself write the persistent SSE event buffer; that is
// the Gateway's exclusive responsibility (spec.md §4.1, §4.5).
func (p *Proxy) publish(ctx context.Context, taskCtx *registry.TaskContext, eventType types.BufferedEventType, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return sameerrors.New(sameerrors.InternalError, "proxy", "publish", err)
	}

	if taskCtx.ReplyToTopic == "" {
		return nil
	}
	envelope, err := json.Marshal(types.MeshEventEnvelope{Type: eventType, Payload: encoded})
	if err != nil {
		return sameerrors.New(sameerrors.InternalError, "proxy", "publish", err)
	}
	if _, err := p.mesh.Publish(ctx, taskCtx.ReplyToTopic, envelope); err != nil {
		return sameerrors.New(sameerrors.TransportError, "proxy", "publish", err)
	}
	return nil
}

func (p *Proxy) publishFailure(ctx context.Context, taskCtx *registry.TaskContext, cause error) error {
	failed := &types.Task{
		ID:        taskCtx.LogicalTaskID,
		ContextID: taskCtx.SessionID,
		Status: types.TaskStatus{
			State:     types.TaskFailed,
			Timestamp: time.Now(),
			Message: &types.Message{
				Role:  types.RoleSystem,
				Parts: []types.Part{types.NewTextPart(cause.Error())},
			},
		},
	}
	return p.publish(ctx, taskCtx, types.BufferedEventTask, failed)
}

// rewriteArtifacts finds file parts carrying inline bytes, saves them to
// the proxy's artifact store, and replaces the bytes with an artifact://
// URI (grounded on
// original_source/src/agent/proxies/a2a/component.py's
// `_handle_outbound_artifacts`, adapted to this module's Part/FileContent
// shape).
func (p *Proxy) rewriteArtifacts(ctx context.Context, taskCtx *registry.TaskContext, artifacts []types.Artifact) ([]types.Artifact, error) {
	if p.artifacts == nil {
		return artifacts, nil
	}
	out := make([]types.Artifact, len(artifacts))
	for i, art := range artifacts {
		out[i] = art
		out[i].Parts = append([]types.Part(nil), art.Parts...)
		for j, part := range art.Parts {
			if part.Kind != types.PartKindFile || part.File == nil || len(part.File.Bytes) == 0 {
				continue
			}
			filename := part.File.Name
			if filename == "" {
				filename = fmt.Sprintf("artifact-%d", i+1)
			}
			saved, err := p.artifacts.Save(ctx, p.appName, taskCtx.UserIdentity.ID, string(taskCtx.SessionID), filename, part.File.Bytes, artifact.Metadata{
				Name:     filename,
				MimeType: part.File.MimeType,
			})
			if err != nil {
				return nil, sameerrors.New(sameerrors.StorageQuota, "proxy", "rewriteArtifacts", err)
			}
			taskCtx.AddProducedArtifact(filename, saved.Version)

			out[i].Parts[j].File = &types.FileContent{
				Name:     filename,
				MimeType: part.File.MimeType,
				URI:      saved.URI,
			}
		}
	}
	return out, nil
}
