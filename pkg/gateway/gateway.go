// Package gateway implements the Gateway Component (spec.md §4.5): the
// client-facing bridge that accepts a submit-task request, publishes it
// onto the mesh, subscribes to the task's private reply topic, records
// every intermediate and terminal event into the persistent SSE event
// buffer, and fans live events out to connected SSE clients with
// reconnect-with-resume. It also owns the share-link subsystem.
//
// Grounded on teacher's server/a2a/server.go + server_stream.go (the
// per-task broadcaster, otelhttp-wrapped net/http.ServeMux, and
// handleTaskSubscribe's resume-else-subscribe logic), generalized from the
// teacher's in-memory-only task store to this module's eventbuffer-backed
// persistent resume across reconnects and process restarts.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/artifact"
	sameerrors "github.com/SolaceLabs/solace-agent-mesh-core/pkg/errors"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/eventbuffer"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/mesh"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/registry"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// Config bundles the gateway's identity, used to namespace mesh topics and
// to make this gateway's reply topics unique among several deployed
// gateways sharing one mesh.
type Config struct {
	Namespace  string
	GatewayID  string
	AppName    string // artifact store app scope for uploads through this gateway
	ReplyGroup string // mesh consumer-group name for reply-topic subscriptions
}

// Gateway is the client-facing bridge described by spec.md §4.5.
type Gateway struct {
	cfg Config

	registry  *registry.Registry
	buffer    *eventbuffer.Buffer
	mesh      *mesh.Client
	artifacts artifact.Store
	shares    *ShareStore

	broadcastersMu sync.Mutex
	broadcasters   map[types.LogicalTaskID]*taskBroadcaster

	activeTasks prometheus.Gauge
}

// New creates a Gateway. A random GatewayID is assigned if cfg.GatewayID is empty.
func New(cfg Config, reg *registry.Registry, buf *eventbuffer.Buffer, meshClient *mesh.Client, artifacts artifact.Store) *Gateway {
	if cfg.GatewayID == "" {
		cfg.GatewayID = uuid.NewString()
	}
	if cfg.ReplyGroup == "" {
		cfg.ReplyGroup = "gateway-" + cfg.GatewayID
	}
	return &Gateway{
		cfg:          cfg,
		registry:     reg,
		buffer:       buf,
		mesh:         meshClient,
		artifacts:    artifacts,
		shares:       NewShareStore(),
		broadcasters: make(map[types.LogicalTaskID]*taskBroadcaster),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sam",
			Subsystem: "gateway",
			Name:      "active_tasks",
			Help:      "Number of tasks with a live TaskContext on this gateway.",
		}),
	}
}

// Collector exposes the gateway's active-task gauge for registration with a
// prometheus.Registry.
func (g *Gateway) Collector() prometheus.Collector { return g.activeTasks }

// SubmitInput is the submit-task operation's input (spec.md §4.5).
type SubmitInput struct {
	TargetAgentName string
	MessageParts    []types.Part
	SessionID       types.SessionID
	UserIdentity    registry.UserIdentity
	ClientID        string // empty unless interactive
	IsStreaming     bool
	Metadata        map[string]any
}

// SubmitTask generates a LogicalTaskId, persists a TaskContext, assembles
// and publishes a modern A2A request onto the target agent's request
// topic, and starts ingesting the reply topic in the background. Returns
// the LogicalTaskId.
func (g *Gateway) SubmitTask(ctx context.Context, in SubmitInput) (types.LogicalTaskID, error) {
	taskID := types.LogicalTaskID(uuid.NewString())
	taskCtx := registry.NewTaskContext(taskID, in.SessionID)
	taskCtx.UserIdentity = in.UserIdentity
	taskCtx.ClientID = in.ClientID
	taskCtx.AppNameForArtifacts = g.cfg.AppName
	taskCtx.StatusTopic = AgentStatusTopic(g.cfg.Namespace, in.TargetAgentName, taskID)
	taskCtx.ReplyToTopic = g.replyTopic(taskID)

	if err := g.registry.Create(taskCtx); err != nil {
		return "", sameerrors.New(sameerrors.InternalError, "gateway", "SubmitTask", err)
	}
	if err := g.buffer.SetTaskMetadata(ctx, taskID, in.SessionID, in.UserIdentity.ID); err != nil {
		logger.Warn("gateway: failed to set task metadata", "task_id", taskID, "error", err)
	}

	method := types.MethodModernMessageSend
	if in.IsStreaming {
		method = types.MethodModernMessageStream
	}
	msg := types.Message{
		Role:      types.RoleUser,
		Parts:     in.MessageParts,
		MessageID: uuid.NewString(),
		ContextID: in.SessionID,
		TaskID:    &taskID,
		Metadata:  in.Metadata,
	}
	params := types.MessageSendParams{
		Message:       msg,
		Configuration: types.MessageSendConfiguration{Blocking: !in.IsStreaming},
		// replyToTopic tells the proxy where to publish this task's
		// events; a proxy has no other way to learn a gateway-owned,
		// per-task reply topic (spec.md §6: "private topic owned by
		// the submitting gateway, advertised via the replyTo
		// user-property"). userId rides along the same way so the
		// proxy's own TaskContext can resolve {user} in artifact URIs
		// (spec.md §6) instead of leaving it blank.
		Metadata: map[string]any{
			"replyToTopic": taskCtx.ReplyToTopic,
			"userId":       in.UserIdentity.ID,
		},
	}
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		g.registry.Remove(taskID)
		return "", sameerrors.New(sameerrors.InternalError, "gateway", "SubmitTask", err)
	}
	req := types.Request{JSONRPC: "2.0", ID: string(taskID), Method: method, Params: paramsRaw}
	reqRaw, err := json.Marshal(req)
	if err != nil {
		g.registry.Remove(taskID)
		return "", sameerrors.New(sameerrors.InternalError, "gateway", "SubmitTask", err)
	}

	reqTopic := AgentRequestTopic(g.cfg.Namespace, in.TargetAgentName)
	if _, err := g.mesh.Publish(ctx, reqTopic, reqRaw); err != nil {
		g.registry.Remove(taskID)
		return "", sameerrors.New(sameerrors.TransportError, "gateway", "SubmitTask", err)
	}

	g.activeTasks.Inc()
	go g.ingestReplies(taskCtx)

	return taskID, nil
}

// Cancel publishes a tasks/cancel request on the target agent's request
// topic and sets the local cancellation token immediately, so forwarders
// observe it before the downstream confirmation arrives (spec.md §4.5).
func (g *Gateway) Cancel(ctx context.Context, taskID types.LogicalTaskID, targetAgentName string) error {
	taskCtx, ok := g.registry.Get(taskID)
	if !ok {
		return sameerrors.New(sameerrors.NotFound, "gateway", "Cancel", errTaskNotFound(taskID))
	}
	taskCtx.Cancellation.Cancel()

	cancelParams := types.CancelTaskParams{ID: string(taskID)}
	paramsRaw, err := json.Marshal(cancelParams)
	if err != nil {
		return sameerrors.New(sameerrors.InternalError, "gateway", "Cancel", err)
	}
	req := types.Request{JSONRPC: "2.0", ID: uuid.NewString(), Method: types.MethodModernTasksCancel, Params: paramsRaw}
	reqRaw, err := json.Marshal(req)
	if err != nil {
		return sameerrors.New(sameerrors.InternalError, "gateway", "Cancel", err)
	}
	reqTopic := AgentRequestTopic(g.cfg.Namespace, targetAgentName)
	if _, err := g.mesh.Publish(ctx, reqTopic, reqRaw); err != nil {
		return sameerrors.New(sameerrors.TransportError, "gateway", "Cancel", err)
	}
	return nil
}

// ingestReplies subscribes to taskCtx.ReplyToTopic, buffers and fans out
// every event until a terminal Task (or canceled) event arrives, then
// cleans up the context and broadcaster. Runs on its own goroutine, one
// per in-flight task, per spec.md §5's one-cooperative-loop-per-component
// model generalized to per-task reply subscriptions (the teacher's single
// process-wide conversation goroutine doesn't have a mesh hop to bridge).
func (g *Gateway) ingestReplies(taskCtx *registry.TaskContext) {
	ctx := context.Background()
	events, errs, cancel, err := g.mesh.Subscribe(ctx, taskCtx.ReplyToTopic, g.cfg.ReplyGroup, g.cfg.GatewayID, 64)
	if err != nil {
		logger.Error("gateway: failed to subscribe reply topic", "task_id", taskCtx.LogicalTaskID, "error", err)
		g.finishTask(taskCtx)
		return
	}
	defer cancel()

	hardTimeout := time.NewTimer(5 * time.Minute)
	defer hardTimeout.Stop()

	for {
		select {
		case err, ok := <-errs:
			if ok && err != nil {
				logger.Error("gateway: reply subscription error", "task_id", taskCtx.LogicalTaskID, "error", err)
			}

		case evt, ok := <-events:
			if !ok {
				g.finishTask(taskCtx)
				return
			}
			terminal := g.handleIncoming(ctx, taskCtx, evt.Payload)
			if terminal {
				g.finishTask(taskCtx)
				return
			}

		case <-hardTimeout.C:
			g.publishLocalFailure(ctx, taskCtx, "task exceeded the deployment hard timeout")
			g.finishTask(taskCtx)
			return
		}
	}
}

// handleIncoming decodes one MeshEventEnvelope, buffers it, and fans it
// out to the task's live broadcaster. Returns true if the event was
// terminal (a Task whose state IsTerminal()).
func (g *Gateway) handleIncoming(ctx context.Context, taskCtx *registry.TaskContext, raw []byte) bool {
	var envelope types.MeshEventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		logger.Error("gateway: malformed mesh event envelope", "task_id", taskCtx.LogicalTaskID, "error", err)
		return false
	}

	if envelope.Type == types.BufferedEventTask {
		if enriched, ok := g.enrichTerminalTask(taskCtx, envelope.Payload); ok {
			envelope.Payload = enriched
		}
	}

	seq, _, err := g.buffer.BufferEventSeq(ctx, taskCtx.LogicalTaskID, envelope.Type, envelope.Payload)
	if err != nil {
		logger.Error("gateway: failed to buffer event", "task_id", taskCtx.LogicalTaskID, "error", err)
	}
	g.getBroadcaster(taskCtx.LogicalTaskID).send(ssePayload{eventType: envelope.Type, sequence: seq, data: envelope.Payload})

	if envelope.Type != types.BufferedEventTask {
		return false
	}
	var task types.Task
	if err := json.Unmarshal(envelope.Payload, &task); err != nil {
		return true
	}
	return task.Status.State.IsTerminal()
}

// enrichTerminalTask appends a produced-artifact manifest block to the
// terminal Task's text response (spec.md §4.5: "After the final event, the
// context's produced-artifact manifest is used to enhance any text
// response with a block describing the new artifacts and their URIs").
// Returns false if payload doesn't decode as a Task, isn't terminal yet, or
// no artifacts were produced — in every such case the caller keeps the
// original payload.
func (g *Gateway) enrichTerminalTask(taskCtx *registry.TaskContext, payload json.RawMessage) (json.RawMessage, bool) {
	var task types.Task
	if err := json.Unmarshal(payload, &task); err != nil || !task.Status.State.IsTerminal() {
		return nil, false
	}
	manifest := taskCtx.ProducedArtifacts()
	if len(manifest) == 0 {
		return nil, false
	}

	var block strings.Builder
	block.WriteString("\n\n---\nProduced artifacts:\n")
	for _, entry := range manifest {
		uri := artifact.BuildURI(taskCtx.AppNameForArtifacts, taskCtx.UserIdentity.ID, string(taskCtx.SessionID), entry.Filename, entry.Version)
		fmt.Fprintf(&block, "- %s (version %d): %s\n", entry.Filename, entry.Version, uri)
	}

	if task.Status.Message == nil {
		task.Status.Message = &types.Message{Role: types.RoleModel}
	}
	task.Status.Message.Parts = append(task.Status.Message.Parts, types.NewTextPart(block.String()))

	enriched, err := json.Marshal(task)
	if err != nil {
		logger.Error("gateway: failed to marshal artifact-enriched task", "task_id", taskCtx.LogicalTaskID, "error", err)
		return nil, false
	}
	return enriched, true
}

// publishLocalFailure synthesizes a terminal failed Task locally (no
// downstream round-trip involved) and records+fans it out exactly like an
// event that arrived over the mesh.
func (g *Gateway) publishLocalFailure(ctx context.Context, taskCtx *registry.TaskContext, reason string) {
	failed := types.Task{
		ID:        taskCtx.LogicalTaskID,
		ContextID: taskCtx.SessionID,
		Status: types.TaskStatus{
			State:     types.TaskFailed,
			Timestamp: time.Now(),
			Message: &types.Message{
				Role:  types.RoleSystem,
				Parts: []types.Part{types.NewTextPart(reason)},
			},
		},
	}
	payload, err := json.Marshal(failed)
	if err != nil {
		return
	}
	seq, _, err := g.buffer.BufferEventSeq(ctx, taskCtx.LogicalTaskID, types.BufferedEventTask, payload)
	if err != nil {
		logger.Error("gateway: failed to buffer local failure", "task_id", taskCtx.LogicalTaskID, "error", err)
	}
	g.getBroadcaster(taskCtx.LogicalTaskID).send(ssePayload{eventType: types.BufferedEventTask, sequence: seq, data: payload})
}

// finishTask removes the task's broadcaster and registry entry. Buffered
// events are left in place: per spec.md §4.1, they persist until consumed
// or cleaned up, independent of the TaskContext's lifetime.
func (g *Gateway) finishTask(taskCtx *registry.TaskContext) {
	g.removeBroadcaster(taskCtx.LogicalTaskID)
	g.registry.Remove(taskCtx.LogicalTaskID)
	g.activeTasks.Dec()
}

type taskNotFoundError struct{ taskID types.LogicalTaskID }

func (e *taskNotFoundError) Error() string { return "task not found: " + string(e.taskID) }

func errTaskNotFound(taskID types.LogicalTaskID) error { return &taskNotFoundError{taskID: taskID} }
