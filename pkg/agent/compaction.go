package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// progressiveSummaryFakeInvocationIDPrefix marks the synthetic event a later compaction
// pass prepends so the summarizer treats a prior summary as ordinary
// conversational context (spec.md §4.6's "progressive summarization
// trick"). The invocation id carries the same marker so callers and tests
// can recognize it without inspecting Compaction fields.
const progressiveSummaryFakeInvocationIDPrefix = "progressive_summary_fake_event"

// FindCompactionCutoff finds the user-turn boundary whose cumulative token
// count is closest to targetTokens, without ever selecting a boundary past
// the last user turn. Returns (0, 0) if there are fewer than two user
// turns — there is nothing safe to compact.
//
// Grounded on
// original_source/tests/unit/agent/adk/test_auto_summarization_runner.py's
// TestFindCompactionCutoff: boundaries are event indices right after a
// user-turn's reply completes, and the closest (not first-over, not
// first-under) boundary to the target wins.
func FindCompactionCutoff(events []ConversationEvent, targetTokens int) (cutoffIndex int, actualTokens int) {
	if len(events) == 0 {
		return 0, 0
	}

	userTurnBoundaries := make([]int, 0, len(events)/2)
	for i, evt := range events {
		if evt.IsUserTurn() && i > 0 {
			userTurnBoundaries = append(userTurnBoundaries, i)
		}
	}
	// The last user turn's index is the latest candidate cutoff: choosing it
	// keeps that turn in the suffix, so it is never compacted (spec.md §4.6,
	// §8 testable property).
	if len(userTurnBoundaries) == 0 {
		return 0, 0
	}

	candidates := userTurnBoundaries
	bestIdx := 0
	bestTokens := 0
	bestDistance := -1
	cumulative := 0
	cursor := 0
	for _, boundary := range candidates {
		cumulative += CalculateSessionContextTokens(events[cursor:boundary])
		cursor = boundary
		distance := abs(cumulative - targetTokens)
		// Ties favor the earlier (smaller) boundary: once set, only a
		// strictly closer candidate replaces it.
		if bestDistance == -1 || distance < bestDistance {
			bestDistance = distance
			bestIdx = boundary
			bestTokens = cumulative
		}
	}
	if bestIdx == 0 {
		return 0, 0
	}
	return bestIdx, bestTokens
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Summarizer produces a single summary ConversationEvent for a span of
// conversation history, the seam pkg/agent calls into the (out-of-scope)
// LLM inference adapter through (spec.md §1: "the LLM inference adapter is
// called through a narrow send/stream interface").
type Summarizer interface {
	Summarize(ctx context.Context, events []ConversationEvent) (ConversationEvent, error)
}

// CompactionState is the per-task compaction bookkeeping stored on a
// registry.TaskContext via SetCompactionState/CompactionState. It is kept
// opaque to pkg/registry (spec.md §3: "optional conversationCompactionState").
type CompactionState struct {
	// PreviousSummaryText is the text of the most recent compaction's
	// summary, if any. Empty before the first compaction.
	PreviousSummaryText string
	// PreviousSummaryEndTimestamp is the end timestamp of the previous
	// compaction's span, used as the fake event's timestamp so it sorts
	// immediately after the real events it stands in for.
	PreviousSummaryEndTimestamp time.Time
	// CompactionCount is the number of compactions already applied to this
	// session, used only to make the fake invocation id inspectable.
	CompactionCount int
}

// Compact runs one compaction pass over events, given a threshold expressed
// as a token count: if the session's current token usage is at or below
// threshold, no compaction happens and ok is false. Otherwise it finds the
// cutoff nearest threshold/2 (mirroring the original's "nearest boundary to
// a target token count" with the target set below the limit, leaving
// headroom), summarizes the prefix, and returns the events to keep
// (summary + everything at/after the cutoff) plus the updated state.
//
// Grounded on
// original_source/tests/unit/agent/adk/test_auto_summarization_runner.py's
// TestCreateCompactionEvent: first compaction summarizes the real prefix
// as-is; every subsequent compaction prepends a fake, unmarked event
// carrying the previous summary's text so the summarizer has continuity
// without re-summarizing already-summarized content.
func Compact(ctx context.Context, state CompactionState, events []ConversationEvent, thresholdTokens int, summarizer Summarizer) ([]ConversationEvent, CompactionState, bool, error) {
	currentTokens := CalculateSessionContextTokens(events)
	if currentTokens <= thresholdTokens {
		return events, state, false, nil
	}

	toSummarize := events
	if state.PreviousSummaryText != "" {
		fake := ConversationEvent{
			ID:        fmt.Sprintf("%s_%d", progressiveSummaryFakeInvocationIDPrefix, state.CompactionCount),
			Author:    "model",
			Role:      types.RoleModel,
			Parts:     []types.Part{types.NewTextPart(state.PreviousSummaryText)},
			Timestamp: state.PreviousSummaryEndTimestamp,
			// Compaction is deliberately nil: an unmarked event is what
			// makes the summarizer treat this as ordinary context rather
			// than re-triggering compaction logic on it.
		}
		toSummarize = append([]ConversationEvent{fake}, events...)
	}

	targetTokens := thresholdTokens / 2
	cutoffIdx, _ := FindCompactionCutoff(toSummarize, targetTokens)
	if cutoffIdx == 0 {
		// Fewer than two user turns even including the fake event: nothing
		// safe to compact.
		return events, state, false, nil
	}

	prefix := toSummarize[:cutoffIdx]
	suffix := toSummarize[cutoffIdx:]

	summaryEvent, err := summarizer.Summarize(ctx, prefix)
	if err != nil {
		logger.Error("agent: compaction summarization failed", "error", err)
		return events, state, false, err
	}
	summaryEvent.Compaction = &CompactionMarker{
		StartTimestamp:   prefix[0].Timestamp,
		EndTimestamp:     prefix[len(prefix)-1].Timestamp,
		CompactedContent: summaryEvent.Parts[0].Text,
	}

	newState := CompactionState{
		PreviousSummaryText:         summaryEvent.Parts[0].Text,
		PreviousSummaryEndTimestamp: summaryEvent.Compaction.EndTimestamp,
		CompactionCount:             state.CompactionCount + 1,
	}

	compacted := append([]ConversationEvent{summaryEvent}, suffix...)
	return compacted, newState, true, nil
}
