package gateway

import (
	"sync"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// ssePayload is one fanned-out event: its already-encoded JSON body plus
// the BufferedEventType discriminant, so subscribers can set the SSE
// `event:` field without re-inspecting the body.
type ssePayload struct {
	eventType types.BufferedEventType
	sequence  int64
	data      []byte
}

// taskBroadcaster fans one task's live event stream out to every connected
// SSE subscriber, dropping events for a subscriber whose channel is full
// rather than blocking the whole task on one slow client (grounded on
// server/a2a/server_stream.go's taskBroadcaster).
type taskBroadcaster struct {
	mu     sync.Mutex
	subs   []chan ssePayload
	closed bool
}

func newTaskBroadcaster() *taskBroadcaster {
	return &taskBroadcaster{}
}

// subscribe registers a new buffered channel and returns it.
func (b *taskBroadcaster) subscribe(bufferSize int) chan ssePayload {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	ch := make(chan ssePayload, bufferSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// unsubscribe removes and closes ch. No-op if already removed.
func (b *taskBroadcaster) unsubscribe(ch chan ssePayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// send fans evt out to every live subscriber, dropping it for any
// subscriber whose channel is currently full.
func (b *taskBroadcaster) send(evt ssePayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub <- evt:
		default:
		}
	}
}

// close closes every subscriber channel and marks the broadcaster dead;
// further subscribe calls return an already-closed channel.
func (b *taskBroadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}

// getBroadcaster returns the live broadcaster for taskID, creating one if
// absent.
func (g *Gateway) getBroadcaster(taskID types.LogicalTaskID) *taskBroadcaster {
	g.broadcastersMu.Lock()
	defer g.broadcastersMu.Unlock()
	b, ok := g.broadcasters[taskID]
	if !ok {
		b = newTaskBroadcaster()
		g.broadcasters[taskID] = b
	}
	return b
}

// lookupBroadcaster returns the live broadcaster for taskID without
// creating one.
func (g *Gateway) lookupBroadcaster(taskID types.LogicalTaskID) (*taskBroadcaster, bool) {
	g.broadcastersMu.Lock()
	defer g.broadcastersMu.Unlock()
	b, ok := g.broadcasters[taskID]
	return b, ok
}

// removeBroadcaster closes and forgets the broadcaster for taskID.
func (g *Gateway) removeBroadcaster(taskID types.LogicalTaskID) {
	g.broadcastersMu.Lock()
	b, ok := g.broadcasters[taskID]
	delete(g.broadcasters, taskID)
	g.broadcastersMu.Unlock()
	if ok {
		b.close()
	}
}
