package agent

import (
	"context"
	"sync"
	"time"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
)

// Work is one unit of work enqueued onto a Loop's channel: a mesh message
// delivery, a timer firing, or an ad hoc cross-thread submission. Loop
// treats all three uniformly — everything that needs to run on the
// dedicated worker arrives as a Work value (spec.md §5: "all inbound
// events are enqueued rather than invoked directly").
type Work func(ctx context.Context)

// Loop is the Agent Runtime Harness's dedicated async loop (spec.md §4.6):
// a single goroutine that serializes mesh message handling, timer firing
// (agent-card registration republish, periodic discovery), and any other
// cross-thread submission. Nothing outside the loop's goroutine touches
// the state it closes over — external callers only ever go through Submit.
//
// Grounded on teacher's runtime/a2a/server.go `runConversation` goroutine
// pattern (one goroutine per unit of concurrent work, panics/errors
// logged rather than propagated into the transport path) generalized from
// "one goroutine per conversation" to "one goroutine draining a work
// queue", per spec.md §9's "explicit task-queue driven event loop"
// design note.
type Loop struct {
	work   chan Work
	done   chan struct{}
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
}

// NewLoop creates a Loop with the given work-queue depth.
func NewLoop(queueDepth int) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		work:   make(chan Work, queueDepth),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run drains the work queue on the calling goroutine until Stop is called.
// Callers run this on a dedicated worker goroutine (spec.md §4.6: "A
// dedicated worker thread runs the loop").
func (l *Loop) Run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case w, ok := <-l.work:
			if !ok {
				return
			}
			l.runOne(w)
		}
	}
}

// runOne executes w, recovering and logging a panic rather than letting it
// propagate into the transport path (spec.md §4.6: "Logs exceptions from
// completed coroutines without propagating them into the transport path").
func (l *Loop) runOne(w Work) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("agent loop: work panicked", "recovered", r)
		}
	}()
	w(l.ctx)
}

// Submit enqueues w for execution on the loop's goroutine. This is the
// only sanctioned way to schedule work from outside the loop (spec.md §5:
// "outside that loop, cross-thread submit is the only sanctioned way to
// schedule work"). Returns false if the loop has been stopped or the
// queue is full and ctx is canceled while waiting.
func (l *Loop) Submit(ctx context.Context, w Work) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.work <- w:
		return true
	case <-l.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// Every schedules w to run on the loop every interval, until the loop
// stops. Mirrors spec.md §4.6's timer events (agent-card republish,
// periodic discovery) funneling into the same loop as mesh messages.
func (l *Loop) Every(interval time.Duration, w Work) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.ctx.Done():
				return
			case <-ticker.C:
				l.Submit(l.ctx, w)
			}
		}
	}()
}

// Stop cancels the loop's context and blocks until Run returns or timeout
// elapses (spec.md §5 cleanup: "join threads with a bounded timeout (≈5s)
// and log if a thread fails to exit").
func (l *Loop) Stop(timeout time.Duration) {
	l.once.Do(l.cancel)
	select {
	case <-l.done:
	case <-time.After(timeout):
		logger.Warn("agent loop: worker did not exit within timeout", "timeout", timeout)
	}
}
