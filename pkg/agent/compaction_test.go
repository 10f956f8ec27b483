package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

func userEvent(id, text string, ts time.Time) ConversationEvent {
	return ConversationEvent{ID: id, Author: "user", Role: types.RoleUser, Parts: []types.Part{types.NewTextPart(text)}, Timestamp: ts}
}

func modelEvent(id, text string, ts time.Time) ConversationEvent {
	return ConversationEvent{ID: id, Author: "model", Role: types.RoleModel, Parts: []types.Part{types.NewTextPart(text)}, Timestamp: ts}
}

func TestFindCompactionCutoffEmptyEvents(t *testing.T) {
	idx, tokens := FindCompactionCutoff(nil, 100)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 0, tokens)
}

func TestFindCompactionCutoffInsufficientUserTurns(t *testing.T) {
	events := []ConversationEvent{
		userEvent("u1", "Single user message", time.Unix(1, 0)),
		modelEvent("m1", "Response", time.Unix(2, 0)),
	}
	idx, tokens := FindCompactionCutoff(events, 10)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 0, tokens)
}

func TestFindCompactionCutoffNeverCompactsLastUserTurn(t *testing.T) {
	events := []ConversationEvent{
		userEvent("u1", "Detailed initial question about architecture and scale.", time.Unix(1, 0)),
		modelEvent("m1", "Comprehensive response with lots of detail and tokens here.", time.Unix(2, 0)),
		userEvent("u2", "Follow-up questions, the current turn.", time.Unix(3, 0)),
	}
	idx, tokens := FindCompactionCutoff(events, 5000)
	assert.Equal(t, 2, idx)
	assert.Greater(t, tokens, 0)
}

func TestFindCompactionCutoffPicksClosestBoundary(t *testing.T) {
	events := []ConversationEvent{
		userEvent("u1", "First", time.Unix(1, 0)),
		modelEvent("m1", "Response one", time.Unix(2, 0)),
		userEvent("u2", "Second question with more content. Second question with more content.", time.Unix(3, 0)),
		modelEvent("m2", "Detailed response. Detailed response. Detailed response.", time.Unix(4, 0)),
		userEvent("u3", "Third question.", time.Unix(5, 0)),
	}
	tokensAt2 := CalculateSessionContextTokens(events[:2])
	tokensAt4 := CalculateSessionContextTokens(events[:4])
	target := tokensAt4 - 10

	idx, _ := FindCompactionCutoff(events, target)
	assert.Equal(t, 4, idx)
	assert.NotEqual(t, tokensAt2, 0)
}

type fakeSummarizer struct {
	text string
}

func (f fakeSummarizer) Summarize(_ context.Context, events []ConversationEvent) (ConversationEvent, error) {
	return ConversationEvent{
		ID:        "summary",
		Author:    "model",
		Role:      types.RoleModel,
		Parts:     []types.Part{types.NewTextPart(f.text)},
		Timestamp: events[len(events)-1].Timestamp,
	}, nil
}

func TestCompactFirstPassHasNoFakeEvent(t *testing.T) {
	events := []ConversationEvent{
		userEvent("u1", "Message 1 with some extra padding text to accumulate tokens.", time.Unix(1, 0)),
		modelEvent("m1", "Response 1 with some extra padding text to accumulate tokens.", time.Unix(2, 0)),
		userEvent("u2", "Message 2.", time.Unix(3, 0)),
		modelEvent("m2", "Response 2.", time.Unix(4, 0)),
	}
	threshold := CalculateSessionContextTokens(events) - 1

	compacted, state, ok, err := Compact(context.Background(), CompactionState{}, events, threshold, fakeSummarizer{text: "First summary"})
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, compacted)
	assert.Equal(t, "First summary", state.PreviousSummaryText)
	assert.Equal(t, 1, state.CompactionCount)
	assert.NotNil(t, compacted[0].Compaction)
}

func TestCompactSecondPassPrependsFakeEvent(t *testing.T) {
	events := []ConversationEvent{
		userEvent("u3", "New question about pricing.", time.Unix(3, 0)),
		modelEvent("m3", "Pricing info response.", time.Unix(4, 0)),
		userEvent("u4", "Follow-up question.", time.Unix(5, 0)),
		modelEvent("m4", "Follow-up response.", time.Unix(6, 0)),
	}
	state := CompactionState{PreviousSummaryText: "Summary from first compaction", PreviousSummaryEndTimestamp: time.Unix(2, 0), CompactionCount: 1}
	threshold := CalculateSessionContextTokens(events) - 1

	var sawFake bool
	summarizer := summarizeFunc(func(_ context.Context, evts []ConversationEvent) (ConversationEvent, error) {
		require.NotEmpty(t, evts)
		sawFake = evts[0].Author == "model" && evts[0].Compaction == nil && evts[0].Parts[0].Text == state.PreviousSummaryText
		return ConversationEvent{ID: "summary2", Author: "model", Role: types.RoleModel, Parts: []types.Part{types.NewTextPart("second summary")}, Timestamp: evts[len(evts)-1].Timestamp}, nil
	})

	_, newState, ok, err := Compact(context.Background(), state, events, threshold, summarizer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, sawFake, "summarizer should have seen the fake event first")
	assert.Equal(t, 2, newState.CompactionCount)
}

type summarizeFunc func(ctx context.Context, events []ConversationEvent) (ConversationEvent, error)

func (f summarizeFunc) Summarize(ctx context.Context, events []ConversationEvent) (ConversationEvent, error) {
	return f(ctx, events)
}

func TestCompactBelowThresholdIsNoop(t *testing.T) {
	events := []ConversationEvent{
		userEvent("u1", "hi", time.Unix(1, 0)),
		modelEvent("m1", "hello", time.Unix(2, 0)),
	}
	_, _, ok, err := Compact(context.Background(), CompactionState{}, events, 1_000_000, fakeSummarizer{text: "x"})
	require.NoError(t, err)
	assert.False(t, ok)
}
