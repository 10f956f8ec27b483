package agent

import (
	"context"
	"fmt"

	sameerrors "github.com/SolaceLabs/solace-agent-mesh-core/pkg/errors"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/registry"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// IsBackgroundTask classifies a task as background-executed rather than
// interactive, per spec.md §4.6: either metadata.backgroundExecutionEnabled
// is true, or replyToTopic is set and no clientId is present (an
// agent-to-agent call, not a live UI session).
//
// Grounded on
// original_source/tests/unit/agent/adk/test_auto_summarization_runner.py's
// TestIsBackgroundTask.
func IsBackgroundTask(taskCtx *registry.TaskContext, metadata map[string]any) bool {
	if enabled, ok := metadata["backgroundExecutionEnabled"].(bool); ok && enabled {
		return true
	}
	return taskCtx.ReplyToTopic != "" && taskCtx.ClientID == ""
}

// TruncationNotifier publishes a TaskStatusUpdateEvent announcing that
// compaction occurred. It is the narrow seam pkg/agent uses to reach the
// mesh without importing pkg/gateway/pkg/proxy (which themselves depend on
// the registry this package consumes) — callers supply a publish function
// bound to their own mesh client and status topic.
type TruncationNotifier func(ctx context.Context, taskCtx *registry.TaskContext, evt types.TaskStatusUpdateEvent) error

// SendTruncationNotification publishes a user-visible status message when
// compaction occurs. Wording differs for interactive vs background tasks
// (spec.md §4.6): "ℹ️ Your conversation history reached the limit…" for
// interactive, "ℹ️ Note: …" for background.
func SendTruncationNotification(ctx context.Context, taskCtx *registry.TaskContext, summary string, isBackground bool, publish TruncationNotifier) error {
	var text string
	if isBackground {
		text = fmt.Sprintf("ℹ️ Note: conversation history was compacted. Summary: %s", summary)
	} else {
		text = fmt.Sprintf("ℹ️ Your conversation history reached the limit and was summarized. Summary: %s", summary)
	}

	evt := types.TaskStatusUpdateEvent{
		TaskID:    taskCtx.LogicalTaskID,
		ContextID: taskCtx.SessionID,
		Status: types.TaskStatus{
			State: types.TaskWorking,
			Message: &types.Message{
				Role:  types.RoleModel,
				Parts: []types.Part{types.NewTextPart(text)},
			},
		},
	}
	if err := publish(ctx, taskCtx, evt); err != nil {
		return sameerrors.New(sameerrors.TransportError, "agent", "SendTruncationNotification", err)
	}
	logger.Info("agent: sent truncation notification", "task_id", taskCtx.LogicalTaskID, "background", isBackground)
	return nil
}

// RecoverFromContextLimit runs compaction and retries call once when err's
// message carries one of pkg/errors's recognized context-limit
// fingerprints (spec.md §4.6 "Context-limit recovery", §7 ContextLimit).
// Any other error, or a second failure after compaction, is returned
// unchanged for the caller to surface as Task-failed.
func RecoverFromContextLimit(
	ctx context.Context,
	taskCtx *registry.TaskContext,
	events []ConversationEvent,
	thresholdTokens int,
	summarizer Summarizer,
	notify TruncationNotifier,
	err error,
	call func(ctx context.Context, events []ConversationEvent) error,
) error {
	if err == nil || !sameerrors.IsContextLimitMessage(err.Error()) {
		return err
	}

	state, _ := taskCtx.CompactionState().(CompactionState)
	// Force a compaction pass even below the configured threshold: the
	// downstream model just told us its context window overflowed, so the
	// normal threshold check would be too late.
	compacted, newState, ok, compactErr := Compact(ctx, state, events, 0, summarizer)
	if compactErr != nil {
		return err
	}
	if !ok {
		return err
	}
	taskCtx.SetCompactionState(newState)

	if notify != nil {
		isBackground := IsBackgroundTask(taskCtx, nil)
		_ = SendTruncationNotification(ctx, taskCtx, newState.PreviousSummaryText, isBackground, notify)
	}

	return call(ctx, compacted)
}
