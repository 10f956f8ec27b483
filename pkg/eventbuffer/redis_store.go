package eventbuffer

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"

	sameerrors "github.com/SolaceLabs/solace-agent-mesh-core/pkg/errors"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// storedEvent is the on-wire JSON shape persisted in the Redis events list,
// one list entry per buffered event, oldest first (RPUSH/LRANGE order).
type storedEvent struct {
	Sequence  int64                   `json:"sequence"`
	EventType types.BufferedEventType `json:"eventType"`
	Payload   json.RawMessage         `json:"payload"`
	CreatedAt int64                   `json:"createdAt"`
}

func encodeEvent(ev ramEvent) ([]byte, error) {
	return json.Marshal(storedEvent{
		Sequence:  ev.sequence,
		EventType: ev.eventType,
		Payload:   ev.payload,
		CreatedAt: ev.createdAt,
	})
}

// writeDirect persists a single event synchronously, used outside hybrid
// mode where there is no RAM staging.
func (b *Buffer) writeDirect(ctx context.Context, taskID types.LogicalTaskID, ev ramEvent) error {
	encoded, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	pipe := b.client.Pipeline()
	pipe.RPush(ctx, b.eventsKey(taskID), encoded)
	if ev.sessionID != "" {
		pipe.SAdd(ctx, b.sessionIndexKey(ev.sessionID), string(taskID))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// persistBatch writes a batch of events, grouped by task, as a single
// pipelined round trip (teacher-grounded on runtime/statestore/redis.go's
// pipelined-write pattern).
func (b *Buffer) persistBatch(ctx context.Context, jobs []writeJob) error {
	if len(jobs) == 0 {
		return nil
	}
	pipe := b.client.Pipeline()
	for _, job := range jobs {
		encoded, err := encodeEvent(job.event)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, b.eventsKey(job.taskID), encoded)
		if job.event.sessionID != "" {
			pipe.SAdd(ctx, b.sessionIndexKey(job.event.sessionID), string(job.taskID))
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// readFromStore reads every persisted event for taskId with sequence >
// fromSequence, in order, and overlays the consumed watermark.
func (b *Buffer) readFromStore(ctx context.Context, taskID types.LogicalTaskID, fromSequence int64) ([]types.BufferedSSEEvent, error) {
	raw, err := b.client.LRange(ctx, b.eventsKey(taskID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, sameerrors.New(sameerrors.TransportError, "eventbuffer", "readFromStore", err)
	}

	watermark, err := b.consumedWatermark(ctx, taskID)
	if err != nil {
		return nil, err
	}
	meta, _ := b.GetTaskMetadata(ctx, taskID)

	out := make([]types.BufferedSSEEvent, 0, len(raw))
	for _, s := range raw {
		var se storedEvent
		if jsonErr := json.Unmarshal([]byte(s), &se); jsonErr != nil {
			continue
		}
		if se.Sequence <= fromSequence {
			continue
		}
		ev := types.BufferedSSEEvent{
			TaskID:         taskID,
			SessionID:      meta.SessionID,
			UserID:         meta.UserID,
			SequenceNumber: se.Sequence,
			EventType:      se.EventType,
			EventPayload:   se.Payload,
			CreatedAtEpoch: se.CreatedAt,
		}
		if se.Sequence <= watermark {
			consumedAt := se.CreatedAt
			ev.ConsumedAtEpoch = &consumedAt
		}
		out = append(out, ev)
	}
	return out, nil
}

func (b *Buffer) consumedWatermark(ctx context.Context, taskID types.LogicalTaskID) (int64, error) {
	val, err := b.client.Get(ctx, b.consumedKey(taskID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, sameerrors.New(sameerrors.TransportError, "eventbuffer", "consumedWatermark", err)
	}
	n, convErr := strconv.ParseInt(val, 10, 64)
	if convErr != nil {
		return 0, nil
	}
	return n, nil
}

// cleanupKey removes events that are both consumed (sequence <= the task's
// consumed watermark) and older than cutoff (epoch millis) from a single
// task's event list, rewriting the list in place with LTrim-style surgery:
// read all, filter, delete and rewrite only if anything changed. An
// unconsumed event is kept regardless of age (spec.md §4.1: cleanup
// "deletes consumed events past the retention window").
func (b *Buffer) cleanupKey(ctx context.Context, key string, taskID types.LogicalTaskID, cutoff int64) (int, error) {
	watermark, err := b.consumedWatermark(ctx, taskID)
	if err != nil {
		return 0, err
	}
	raw, err := b.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	kept := make([][]byte, 0, len(raw))
	removed := 0
	for _, s := range raw {
		var se storedEvent
		if json.Unmarshal([]byte(s), &se) != nil {
			kept = append(kept, []byte(s))
			continue
		}
		if se.Sequence <= watermark && se.CreatedAt < cutoff {
			removed++
			continue
		}
		kept = append(kept, []byte(s))
	}
	if removed == 0 {
		return 0, nil
	}
	pipe := b.client.Pipeline()
	pipe.Del(ctx, key)
	if len(kept) > 0 {
		args := make([]any, len(kept))
		for i, k := range kept {
			args[i] = k
		}
		pipe.RPush(ctx, key, args...)
	}
	_, err = pipe.Exec(ctx)
	return removed, err
}
