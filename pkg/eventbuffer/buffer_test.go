package eventbuffer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

func newTestBuffer(t *testing.T, opts ...Option) (*Buffer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	b := New(client, opts...)
	t.Cleanup(b.Close)
	return b, mr
}

func TestBufferEventRejectsWithoutMetadata(t *testing.T) {
	b, _ := newTestBuffer(t)
	ctx := context.Background()

	ok, err := b.BufferEvent(ctx, "task-1", types.BufferedEventTask, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBufferEventDirectModeWritesThrough(t *testing.T) {
	b, _ := newTestBuffer(t)
	ctx := context.Background()

	require.NoError(t, b.SetTaskMetadata(ctx, "task-1", "session-1", "user-1"))
	ok, err := b.BufferEvent(ctx, "task-1", types.BufferedEventTask, json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.True(t, ok)

	events, err := b.GetBufferedEvents(ctx, "task-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].SequenceNumber)
	assert.Equal(t, types.SessionID("session-1"), events[0].SessionID)
}

func TestBufferEventHybridModeFlushesToStore(t *testing.T) {
	b, _ := newTestBuffer(t, WithHybridMode(50), WithBatch(10, 20*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, b.SetTaskMetadata(ctx, "task-1", "session-1", "user-1"))
	for i := 0; i < 3; i++ {
		ok, err := b.BufferEvent(ctx, "task-1", types.BufferedEventStatusUpdate, json.RawMessage(`{}`))
		require.NoError(t, err)
		assert.True(t, ok)
	}

	events, err := b.GetBufferedEvents(ctx, "task-1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, int64(1), events[0].SequenceNumber)
	assert.Equal(t, int64(3), events[2].SequenceNumber)
}

func TestBufferEventHybridAutoFlushesAtThreshold(t *testing.T) {
	b, _ := newTestBuffer(t, WithHybridMode(2), WithBatch(10, 20*time.Millisecond))
	ctx := context.Background()
	require.NoError(t, b.SetTaskMetadata(ctx, "task-1", "session-1", "user-1"))

	for i := 0; i < 2; i++ {
		_, err := b.BufferEvent(ctx, "task-1", types.BufferedEventStatusUpdate, json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		events, err := b.GetBufferedEvents(ctx, "task-1", 0)
		return err == nil && len(events) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestMarkEventsConsumed(t *testing.T) {
	b, _ := newTestBuffer(t)
	ctx := context.Background()
	require.NoError(t, b.SetTaskMetadata(ctx, "task-1", "session-1", "user-1"))
	for i := 0; i < 3; i++ {
		_, err := b.BufferEvent(ctx, "task-1", types.BufferedEventTask, json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	require.NoError(t, b.MarkEventsConsumed(ctx, "task-1", 2))

	events, err := b.GetBufferedEvents(ctx, "task-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.NotNil(t, events[0].ConsumedAtEpoch)
	assert.NotNil(t, events[1].ConsumedAtEpoch)
	assert.Nil(t, events[2].ConsumedAtEpoch)

	has, err := b.HasUnconsumedEvents(ctx, "task-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestGetUnconsumedEventsForSession(t *testing.T) {
	b, _ := newTestBuffer(t)
	ctx := context.Background()
	require.NoError(t, b.SetTaskMetadata(ctx, "task-1", "session-A", "user-1"))
	require.NoError(t, b.SetTaskMetadata(ctx, "task-2", "session-A", "user-1"))
	_, err := b.BufferEvent(ctx, "task-1", types.BufferedEventTask, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = b.BufferEvent(ctx, "task-2", types.BufferedEventTask, json.RawMessage(`{}`))
	require.NoError(t, err)

	byTask, err := b.GetUnconsumedEventsForSession(ctx, "session-A")
	require.NoError(t, err)
	assert.Len(t, byTask, 2)
	assert.Len(t, byTask["task-1"], 1)
	assert.Len(t, byTask["task-2"], 1)
}

func TestDeleteEventsForTaskClearsRAMEvenOnDBFailure(t *testing.T) {
	b, mr := newTestBuffer(t, WithHybridMode(50))
	ctx := context.Background()
	require.NoError(t, b.SetTaskMetadata(ctx, "task-1", "session-1", "user-1"))
	_, err := b.BufferEvent(ctx, "task-1", types.BufferedEventTask, json.RawMessage(`{}`))
	require.NoError(t, err)

	mr.Close()

	_, _ = b.DeleteEventsForTask(ctx, "task-1")

	b.ramMu.Lock()
	ramLen := len(b.ram["task-1"])
	b.ramMu.Unlock()
	assert.Equal(t, 0, ramLen)

	_, ok := b.GetTaskMetadata(ctx, "task-1")
	assert.False(t, ok)
}

func TestCleanupOldEventsOnlyRemovesConsumed(t *testing.T) {
	b, _ := newTestBuffer(t)
	ctx := context.Background()
	require.NoError(t, b.SetTaskMetadata(ctx, "task-1", "session-1", "user-1"))

	old := time.Now().Add(-48 * time.Hour).UnixMilli()
	for _, se := range []storedEvent{
		{Sequence: 1, EventType: types.BufferedEventTask, Payload: json.RawMessage(`{}`), CreatedAt: old},
		{Sequence: 2, EventType: types.BufferedEventTask, Payload: json.RawMessage(`{}`), CreatedAt: old},
	} {
		encoded, err := json.Marshal(se)
		require.NoError(t, err)
		require.NoError(t, b.client.RPush(ctx, b.eventsKey("task-1"), encoded).Err())
	}
	// Only sequence 1 is consumed; sequence 2 is old but never consumed and
	// must survive cleanup (spec.md §4.1: cleanup removes consumed events).
	require.NoError(t, b.MarkEventsConsumed(ctx, "task-1", 1))

	deleted, err := b.CleanupOldEvents(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	events, err := b.GetBufferedEvents(ctx, "task-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].SequenceNumber)
}

func TestDisabledBufferIsNoOp(t *testing.T) {
	b := New(nil)
	ctx := context.Background()
	require.NoError(t, b.SetTaskMetadata(ctx, "task-1", "session-1", "user-1"))
	ok, err := b.BufferEvent(ctx, "task-1", types.BufferedEventTask, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, ok)
}
