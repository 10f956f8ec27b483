package proxy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/registry"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/translate"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// RequestTopic builds the per-agent request topic this proxy subscribes
// to for agentName (spec.md §6), mirroring pkg/gateway.AgentRequestTopic's
// format so a gateway and a proxy sharing a namespace agree on the topic
// without importing one another's package.
func RequestTopic(namespace, agentName string) string {
	return fmt.Sprintf("%s/a2a/v1/agent/request/%s", namespace, agentName)
}

// Serve subscribes to agentName's request topic and dispatches every
// incoming message/send, message/stream, or tasks/cancel request until ctx
// is canceled. One Serve call runs for the lifetime of one configured
// downstream agent; callers typically start one per entry in
// config.Config.Agents. Grounded on pkg/gateway.ingestReplies's
// goroutine-per-subscription shape, generalized from "one goroutine per
// in-flight task" to "one goroutine per configured agent, dispatching
// every task that arrives for it".
func (p *Proxy) Serve(ctx context.Context, namespace, agentName, group, consumer string) error {
	topic := RequestTopic(namespace, agentName)
	events, errs, cancel, err := p.mesh.Subscribe(ctx, topic, group, consumer, 64)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case subErr, ok := <-errs:
			if !ok {
				return nil
			}
			logger.Error("proxy: mesh subscription error", "agent", agentName, "error", subErr)

		case msg, ok := <-events:
			if !ok {
				return nil
			}
			p.handleRequest(ctx, agentName, msg.Payload)
		}
	}
}

// handleRequest decodes one JSON-RPC request addressed to agentName,
// normalizes it to the modern dialect via the inbound translator (spec.md
// §4.4 dispatch step 3 — unconditional on every request, so a request
// already in the modern dialect passes through unchanged), and either
// starts a new Dispatch (message/send, message/stream) or applies a
// cancellation to an already-running one (tasks/cancel). Decode and
// dispatch failures are logged rather than propagated, matching
// ingestReplies's per-message isolation: one malformed request must not
// take down the subscription loop serving every other task for this
// agent.
func (p *Proxy) handleRequest(ctx context.Context, agentName string, raw []byte) {
	var req types.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		logger.Error("proxy: failed to decode mesh request", "agent", agentName, "error", err)
		return
	}

	result, err := translate.TranslateInbound(&req, false)
	if err != nil {
		logger.Error("proxy: failed to translate inbound request", "agent", agentName, "error", err)
		return
	}

	switch result.Method {
	case types.MethodModernTasksCancel:
		if taskCtx, ok := p.registry.Get(types.LogicalTaskID(result.CancelParams.ID)); ok {
			taskCtx.Cancellation.Cancel()
		}

	case types.MethodModernMessageSend, types.MethodModernMessageStream:
		params := result.Params
		if params.Message.TaskID == nil {
			logger.Error("proxy: message/send request carries no taskId", "agent", agentName)
			return
		}
		taskID := *params.Message.TaskID
		taskCtx := registry.NewTaskContext(taskID, params.Message.ContextID)
		taskCtx.AppNameForArtifacts = p.appName
		if replyTopic, ok := params.Metadata["replyToTopic"].(string); ok {
			taskCtx.ReplyToTopic = replyTopic
		}
		if userID, ok := params.Metadata["userId"].(string); ok {
			taskCtx.UserIdentity.ID = userID
		}
		if err := p.registry.Create(taskCtx); err != nil {
			logger.Error("proxy: duplicate task id from mesh", "agent", agentName, "task_id", taskID, "error", err)
			return
		}

		go func() {
			defer p.registry.Remove(taskID)
			if err := p.Dispatch(ctx, taskCtx, agentName, params); err != nil {
				logger.Error("proxy: dispatch failed", "agent", agentName, "task_id", taskID, "error", err)
			}
		}()

	default:
		logger.Warn("proxy: unsupported method on request topic", "agent", agentName, "method", result.Method)
	}
}
