package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/translate"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

const keepaliveInterval = 15 * time.Second

// writeSSE writes one event/data frame and flushes (grounded on
// server/a2a/server_stream.go's writeSSE).
func writeSSE(w http.ResponseWriter, flusher http.Flusher, seq int64, eventType types.BufferedEventType, data []byte) {
	if seq > 0 {
		fmt.Fprintf(w, "id: %d\n", seq)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	flusher.Flush()
}

// writeKeepalive writes an SSE comment line, ignored by clients but enough
// to keep intermediate proxies from timing out an idle connection.
func writeKeepalive(w http.ResponseWriter, flusher http.Flusher) {
	fmt.Fprint(w, ": keepalive\n\n")
	flusher.Flush()
}

// wantsLegacyDialect reports whether the subscribing client asked for
// events rewritten into the legacy SAM A2A dialect (spec.md §4.2
// "Outbound (modern → legacy)") instead of the modern wire shape every
// event is buffered in.
func wantsLegacyDialect(r *http.Request) bool {
	return r.URL.Query().Get("dialect") == "legacy"
}

// translateEventForDialect rewrites a buffered event's payload into the
// legacy dialect when legacy is true; on any translation failure (or for
// event types the translator doesn't recognize) the original payload is
// returned unchanged rather than dropping the event.
func translateEventForDialect(eventType types.BufferedEventType, payload []byte, legacy bool) []byte {
	if !legacy {
		return payload
	}

	var decoded any
	switch eventType {
	case types.BufferedEventTask:
		decoded = &types.Task{}
	case types.BufferedEventStatusUpdate:
		decoded = &types.TaskStatusUpdateEvent{}
	case types.BufferedEventArtifactUpdate:
		decoded = &types.TaskArtifactUpdateEvent{}
	default:
		return payload
	}
	if err := json.Unmarshal(payload, decoded); err != nil {
		logger.Error("gateway: failed to decode event for legacy translation", "event_type", eventType, "error", err)
		return payload
	}
	legacyShape, err := translate.TranslateOutboundEvent(decoded)
	if err != nil {
		logger.Error("gateway: failed to translate event to legacy dialect", "event_type", eventType, "error", err)
		return payload
	}
	rewritten, err := json.Marshal(legacyShape)
	if err != nil {
		logger.Error("gateway: failed to marshal legacy-translated event", "event_type", eventType, "error", err)
		return payload
	}
	return rewritten
}

// lastEventID extracts a resume cursor from the Last-Event-ID header or a
// `?lastEventId=` query parameter, preferring the header (standard SSE
// reconnect behavior).
func lastEventID(r *http.Request) int64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// HandleSubscribeTask implements GET /api/v1/sse/subscribe/{taskId}: on
// connect, replays buffered events strictly greater than the resume
// cursor, then joins the live broadcaster until the client disconnects or
// the task finishes (spec.md §4.5 SSE fan-out and reconnect).
func (g *Gateway) HandleSubscribeTask(w http.ResponseWriter, r *http.Request, taskID types.LogicalTaskID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	cursor := lastEventID(r)
	legacy := wantsLegacyDialect(r)

	buffered, err := g.buffer.GetBufferedEvents(ctx, taskID, cursor)
	if err != nil {
		logger.Error("gateway: failed to replay buffered events", "task_id", taskID, "error", err)
	}
	for _, ev := range buffered {
		writeSSE(w, flusher, ev.SequenceNumber, ev.EventType, translateEventForDialect(ev.EventType, ev.EventPayload, legacy))
		cursor = ev.SequenceNumber
	}

	b, live := g.lookupBroadcaster(taskID)
	if !live {
		// Task already finished (or never existed); nothing further to stream.
		return
	}
	sub := b.subscribe(32)
	defer b.unsubscribe(sub)

	g.streamLive(ctx, w, flusher, sub, legacy)
}

// HandleSubscribeSession implements resume-by-session: replays unconsumed
// events for every unfinished task in sessionID, then joins whichever of
// those tasks are still live (spec.md §4.5: "On connect by sessionId, the
// gateway replays unconsumed events for every unfinished task in the
// session before joining live").
func (g *Gateway) HandleSubscribeSession(w http.ResponseWriter, r *http.Request, sessionID types.SessionID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	legacy := wantsLegacyDialect(r)

	perTask, err := g.buffer.GetUnconsumedEventsForSession(ctx, sessionID)
	if err != nil {
		logger.Error("gateway: failed to replay session events", "session_id", sessionID, "error", err)
	}
	var liveTaskIDs []types.LogicalTaskID
	for taskID, events := range perTask {
		for _, ev := range events {
			writeSSE(w, flusher, ev.SequenceNumber, ev.EventType, translateEventForDialect(ev.EventType, ev.EventPayload, legacy))
		}
		liveTaskIDs = append(liveTaskIDs, taskID)
	}

	merged := make(chan ssePayload, 64)
	var subs []unsubFunc
	for _, taskID := range liveTaskIDs {
		b, ok := g.lookupBroadcaster(taskID)
		if !ok {
			continue
		}
		sub := b.subscribe(32)
		subs = append(subs, func() { b.unsubscribe(sub) })
		go relay(ctx, sub, merged)
	}
	defer func() {
		for _, unsub := range subs {
			unsub()
		}
	}()

	g.streamLive(ctx, w, flusher, merged, legacy)
}

type unsubFunc func()

// relay copies events from a per-task broadcaster subscription into a
// shared merged channel until ctx is done or the subscription closes.
func relay(ctx context.Context, sub <-chan ssePayload, merged chan<- ssePayload) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			select {
			case merged <- evt:
			case <-ctx.Done():
				return
			}
		}
	}
}

// streamLive writes events from sub to the client until ctx is canceled
// (client disconnect) or sub closes (broadcaster finished), interleaving
// periodic keepalive comments.
func (g *Gateway) streamLive(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sub <-chan ssePayload, legacy bool) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-sub:
			if !ok {
				return
			}
			writeSSE(w, flusher, evt.sequence, evt.eventType, translateEventForDialect(evt.eventType, evt.data, legacy))

		case <-ticker.C:
			writeKeepalive(w, flusher)
		}
	}
}
