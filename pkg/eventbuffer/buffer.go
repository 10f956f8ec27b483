// Package eventbuffer implements the Persistent SSE Event Buffer (spec.md
// §4.1): a hybrid RAM-plus-Redis event store guaranteeing no event is lost
// across transient client disconnects. Writers append to a per-task RAM
// slice; a bounded async queue and dedicated writer goroutine batch those
// events into Redis so producers are never blocked on persistence.
//
// Behavioral contract grounded on
// original_source/tests/unit/gateway/http_sse/test_persistent_sse_event_buffer.py:
// metadata-absent writes are rejected, RAM is cleared even if the DB delete
// fails, and hybrid mode requires both the Enabled flag and a live client.
package eventbuffer

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	sameerrors "github.com/SolaceLabs/solace-agent-mesh-core/pkg/errors"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// TaskMetadata is the authorization-bearing record every buffered event is
// paired against: reads must match (taskId, sessionId, userId).
type TaskMetadata struct {
	SessionID types.SessionID
	UserID    string
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithHybridMode enables the RAM-plus-async-queue write path. threshold is
// the RAM slice size that triggers an automatic flush.
func WithHybridMode(threshold int) Option {
	return func(b *Buffer) {
		b.hybridEnabled = true
		b.flushThreshold = threshold
	}
}

// WithQueueSize sets the bounded async write queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Buffer) { b.queueSize = n }
}

// WithBatch sets the writer worker's batch size and max batch delay.
func WithBatch(size int, timeout time.Duration) Option {
	return func(b *Buffer) { b.batchSize = size; b.batchTimeout = timeout }
}

// WithPrefix sets the Redis key prefix. Defaults to "sam".
func WithPrefix(prefix string) Option {
	return func(b *Buffer) { b.prefix = prefix }
}

// WithEnabled explicitly sets whether the buffer accepts writes. Defaults
// to true; a disabled buffer makes BufferEvent a no-op returning false,
// matching the teacher-grounded contract that "enabled" gates writes
// independent of hybrid mode.
func WithEnabled(enabled bool) Option {
	return func(b *Buffer) { b.enabled = enabled }
}

// Buffer is the Persistent SSE Event Buffer.
type Buffer struct {
	client *redis.Client

	enabled        bool
	hybridEnabled  bool
	flushThreshold int
	queueSize      int
	batchSize      int
	batchTimeout   time.Duration
	prefix         string

	metaMu    sync.RWMutex
	metaCache map[types.LogicalTaskID]TaskMetadata

	ramMu sync.Mutex
	ram   map[types.LogicalTaskID][]ramEvent

	seqMu sync.Mutex
	seq   map[types.LogicalTaskID]int64

	queue  chan writeJob
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type ramEvent struct {
	sequence  int64
	eventType types.BufferedEventType
	payload   json.RawMessage
	createdAt int64
	sessionID types.SessionID
	userID    string
}

// New creates a Buffer backed by client (nil is allowed only if enabled is
// false; the buffer is then a pure no-op, matching the teacher-grounded
// requirement that "enabled" AND a non-nil client are both needed).
func New(client *redis.Client, opts ...Option) *Buffer {
	b := &Buffer{
		client:         client,
		enabled:        true,
		flushThreshold: 50,
		queueSize:      1000,
		batchSize:      25,
		batchTimeout:   200 * time.Millisecond,
		prefix:         "sam",
		metaCache:      make(map[types.LogicalTaskID]TaskMetadata),
		ram:            make(map[types.LogicalTaskID][]ramEvent),
		seq:            make(map[types.LogicalTaskID]int64),
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.client == nil {
		b.enabled = false
	}
	b.queue = make(chan writeJob, b.queueSize)
	if b.enabled {
		b.wg.Add(1)
		go b.writerLoop()
	}
	return b
}

// isUsable mirrors the teacher-grounded rule that hybrid/direct writes
// require both Enabled and a live client.
func (b *Buffer) isUsable() bool {
	return b.enabled && b.client != nil
}

// SetTaskMetadata stores the (sessionId, userId) pair for taskId. Required
// before the first BufferEvent call.
func (b *Buffer) SetTaskMetadata(ctx context.Context, taskID types.LogicalTaskID, sessionID types.SessionID, userID string) error {
	b.metaMu.Lock()
	b.metaCache[taskID] = TaskMetadata{SessionID: sessionID, UserID: userID}
	b.metaMu.Unlock()

	if !b.isUsable() {
		return nil
	}
	return b.client.HSet(ctx, b.metaKey(taskID), map[string]any{
		"sessionId": string(sessionID),
		"userId":    userID,
	}).Err()
}

// GetTaskMetadata returns the metadata for taskId, checking the in-memory
// cache first and falling back to Redis when cold.
func (b *Buffer) GetTaskMetadata(ctx context.Context, taskID types.LogicalTaskID) (TaskMetadata, bool) {
	b.metaMu.RLock()
	meta, ok := b.metaCache[taskID]
	b.metaMu.RUnlock()
	if ok {
		return meta, true
	}
	if !b.isUsable() {
		return TaskMetadata{}, false
	}
	res, err := b.client.HGetAll(ctx, b.metaKey(taskID)).Result()
	if err != nil || len(res) == 0 {
		return TaskMetadata{}, false
	}
	meta = TaskMetadata{SessionID: types.SessionID(res["sessionId"]), UserID: res["userId"]}
	b.metaMu.Lock()
	b.metaCache[taskID] = meta
	b.metaMu.Unlock()
	return meta, true
}

// ClearTaskMetadata removes taskId from the in-memory cache.
func (b *Buffer) ClearTaskMetadata(taskID types.LogicalTaskID) {
	b.metaMu.Lock()
	delete(b.metaCache, taskID)
	b.metaMu.Unlock()
}

// nextSequence returns the next dense, strictly monotonic sequence number
// for taskId, starting at 1.
func (b *Buffer) nextSequence(taskID types.LogicalTaskID) int64 {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	b.seq[taskID]++
	return b.seq[taskID]
}

// BufferEvent assigns a sequence number and records one event for taskId.
// Returns false (not an error) if the buffer is disabled or no metadata is
// available — this prevents orphan rows whose authorization cannot be
// checked.
func (b *Buffer) BufferEvent(ctx context.Context, taskID types.LogicalTaskID, eventType types.BufferedEventType, payload json.RawMessage) (bool, error) {
	_, ok, err := b.BufferEventSeq(ctx, taskID, eventType, payload)
	return ok, err
}

// BufferEventSeq is BufferEvent plus the assigned sequence number, for
// callers (the Gateway's live SSE fan-out) that need to tag the event with
// its resume cursor without a second round trip.
func (b *Buffer) BufferEventSeq(ctx context.Context, taskID types.LogicalTaskID, eventType types.BufferedEventType, payload json.RawMessage) (int64, bool, error) {
	if !b.enabled {
		return 0, false, nil
	}
	meta, ok := b.GetTaskMetadata(ctx, taskID)
	if !ok {
		logger.Warn("buffer_event: no metadata available, rejecting", "task_id", taskID)
		return 0, false, nil
	}

	seq := b.nextSequence(taskID)
	ev := ramEvent{
		sequence:  seq,
		eventType: eventType,
		payload:   payload,
		createdAt: time.Now().UnixMilli(),
		sessionID: meta.SessionID,
		userID:    meta.UserID,
	}

	if b.hybridEnabled {
		b.ramMu.Lock()
		b.ram[taskID] = append(b.ram[taskID], ev)
		shouldFlush := len(b.ram[taskID]) >= b.flushThreshold
		b.ramMu.Unlock()
		if shouldFlush {
			if _, err := b.FlushTaskBuffer(ctx, taskID); err != nil {
				logger.Error("buffer_event: threshold flush failed", "task_id", taskID, "error", err)
			}
		}
		return seq, true, nil
	}

	if err := b.writeDirect(ctx, taskID, ev); err != nil {
		logger.Error("buffer_event: direct write failed", "task_id", taskID, "error", err)
		return 0, false, sameerrors.New(sameerrors.TransportError, "eventbuffer", "BufferEvent", err)
	}
	return seq, true, nil
}

// FlushTaskBuffer moves the RAM slice into the async write queue. Re-adds
// any events that could not be enqueued (queue full) back onto the RAM
// head, preserving FIFO order, so a later flush retries them. No-op
// outside hybrid mode.
func (b *Buffer) FlushTaskBuffer(ctx context.Context, taskID types.LogicalTaskID) (int, error) {
	if !b.hybridEnabled {
		return 0, nil
	}
	b.ramMu.Lock()
	pending := b.ram[taskID]
	b.ram[taskID] = nil
	b.ramMu.Unlock()

	if len(pending) == 0 {
		return 0, nil
	}

	enqueued := 0
	var failedTail []ramEvent
	for i, ev := range pending {
		select {
		case b.queue <- writeJob{taskID: taskID, event: ev}:
			enqueued++
		default:
			failedTail = pending[i:]
		}
		if failedTail != nil {
			break
		}
	}

	if len(failedTail) > 0 {
		b.ramMu.Lock()
		b.ram[taskID] = append(append([]ramEvent{}, failedTail...), b.ram[taskID]...)
		b.ramMu.Unlock()
	}

	return enqueued, nil
}

// GetBufferedEvents returns events for taskId with sequence > fromSequence,
// in order. In hybrid mode the RAM slice is flushed first so the read
// reflects all known events.
func (b *Buffer) GetBufferedEvents(ctx context.Context, taskID types.LogicalTaskID, fromSequence int64) ([]types.BufferedSSEEvent, error) {
	if b.hybridEnabled {
		if _, err := b.FlushTaskBuffer(ctx, taskID); err != nil {
			return nil, err
		}
	}
	if !b.isUsable() {
		return nil, nil
	}
	return b.readFromStore(ctx, taskID, fromSequence)
}

// HasUnconsumedEvents reports whether taskId has any event whose
// ConsumedAtEpoch is unset.
func (b *Buffer) HasUnconsumedEvents(ctx context.Context, taskID types.LogicalTaskID) (bool, error) {
	if b.hybridEnabled {
		b.ramMu.Lock()
		n := len(b.ram[taskID])
		b.ramMu.Unlock()
		if n > 0 {
			return true, nil
		}
	}
	if !b.isUsable() {
		return false, nil
	}
	watermark, err := b.consumedWatermark(ctx, taskID)
	if err != nil {
		return false, err
	}
	events, err := b.readFromStore(ctx, taskID, watermark)
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}

// GetUnconsumedEventsForSession resumes every unfinished task in sessionId
// by returning its unconsumed events, keyed by taskId.
func (b *Buffer) GetUnconsumedEventsForSession(ctx context.Context, sessionID types.SessionID) (map[types.LogicalTaskID][]types.BufferedSSEEvent, error) {
	if !b.isUsable() {
		return map[types.LogicalTaskID][]types.BufferedSSEEvent{}, nil
	}
	taskIDs, err := b.client.SMembers(ctx, b.sessionIndexKey(sessionID)).Result()
	if err != nil {
		return nil, sameerrors.New(sameerrors.TransportError, "eventbuffer", "GetUnconsumedEventsForSession", err)
	}
	out := make(map[types.LogicalTaskID][]types.BufferedSSEEvent, len(taskIDs))
	for _, raw := range taskIDs {
		taskID := types.LogicalTaskID(raw)
		watermark, err := b.consumedWatermark(ctx, taskID)
		if err != nil {
			continue
		}
		events, err := b.GetBufferedEvents(ctx, taskID, watermark)
		if err != nil || len(events) == 0 {
			continue
		}
		out[taskID] = events
	}
	return out, nil
}

// MarkEventsConsumed advances the consumed watermark for taskId.
func (b *Buffer) MarkEventsConsumed(ctx context.Context, taskID types.LogicalTaskID, upToSequence int64) error {
	if !b.isUsable() {
		return nil
	}
	return b.client.Set(ctx, b.consumedKey(taskID), upToSequence, 0).Err()
}

// DeleteEventsForTask clears the RAM slice and cached metadata for taskId
// even if the underlying DB delete fails — RAM state must not linger
// once the caller considers the task gone.
func (b *Buffer) DeleteEventsForTask(ctx context.Context, taskID types.LogicalTaskID) (int, error) {
	b.ramMu.Lock()
	ramCount := len(b.ram[taskID])
	delete(b.ram, taskID)
	b.ramMu.Unlock()
	b.ClearTaskMetadata(taskID)

	if !b.isUsable() {
		return ramCount, nil
	}
	n, err := b.client.LLen(ctx, b.eventsKey(taskID)).Result()
	pipe := b.client.Pipeline()
	pipe.Del(ctx, b.eventsKey(taskID))
	pipe.Del(ctx, b.metaKey(taskID))
	pipe.Del(ctx, b.consumedKey(taskID))
	if _, pipeErr := pipe.Exec(ctx); pipeErr != nil {
		logger.Error("delete_events_for_task: db delete failed, RAM still cleared", "task_id", taskID, "error", pipeErr)
		return ramCount, sameerrors.New(sameerrors.TransportError, "eventbuffer", "DeleteEventsForTask", pipeErr)
	}
	if err != nil {
		n = 0
	}
	return ramCount + int(n), nil
}

// CleanupOldEvents deletes consumed events older than olderThanDays,
// scanning task event-list keys under the buffer's prefix.
func (b *Buffer) CleanupOldEvents(ctx context.Context, olderThanDays int) (int, error) {
	if !b.isUsable() {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays).UnixMilli()
	var cursor uint64
	deleted := 0
	pattern := b.prefix + ":events:*"
	for {
		keys, next, err := b.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, sameerrors.New(sameerrors.TransportError, "eventbuffer", "CleanupOldEvents", err)
		}
		for _, key := range keys {
			taskID := types.LogicalTaskID(strings.TrimPrefix(key, b.prefix+":events:"))
			n, err := b.cleanupKey(ctx, key, taskID, cutoff)
			if err != nil {
				logger.Warn("cleanup_old_events: key cleanup failed", "key", key, "error", err)
				continue
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// Close stops the async writer worker, draining any queued events first.
func (b *Buffer) Close() {
	close(b.stopCh)
	b.wg.Wait()
}
