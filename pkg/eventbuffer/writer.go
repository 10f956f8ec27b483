package eventbuffer

import (
	"context"
	"time"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// writeJob is one queued, not-yet-persisted event.
type writeJob struct {
	taskID types.LogicalTaskID
	event  ramEvent
}

// writerLoop is the bounded async write worker: it batches queued jobs by
// size or by a max delay, whichever comes first, and persists each batch
// in a single pipelined round trip. On shutdown it drains whatever remains
// queued before returning.
func (b *Buffer) writerLoop() {
	defer b.wg.Done()

	ctx := context.Background()
	batch := make([]writeJob, 0, b.batchSize)
	timer := time.NewTimer(b.batchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := b.persistBatch(ctx, batch); err != nil {
			logger.Error("eventbuffer writer: batch persist failed", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case job := <-b.queue:
			batch = append(batch, job)
			if len(batch) >= b.batchSize {
				flush()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(b.batchTimeout)
			}
		case <-timer.C:
			flush()
			timer.Reset(b.batchTimeout)
		case <-b.stopCh:
			for {
				select {
				case job := <-b.queue:
					batch = append(batch, job)
				default:
					flush()
					return
				}
			}
		}
	}
}
