// Package agent implements the Agent Runtime Harness (spec.md §4.6): the
// agent-side async dispatch loop, conversation-context compaction with
// progressive summarization, context-limit recovery, and the
// background-vs-interactive truncation notifications that come with it.
package agent

import (
	"time"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// ConversationEvent is one turn of a session's conversation history, the
// unit _calculate_session_context_tokens and _find_compaction_cutoff
// operate over in original_source's runner.py.
type ConversationEvent struct {
	ID        string
	Author    string // "user", "model", or "system"
	Role      types.Role
	Parts     []types.Part
	Timestamp time.Time
	Compaction *CompactionMarker
}

// IsUserTurn reports whether this event starts a user turn.
func (e ConversationEvent) IsUserTurn() bool {
	return e.Author == "user" || e.Role == types.RoleUser
}

// CompactionMarker is attached to the synthetic summary event a compaction
// produces, recording which span of the real history it replaces.
type CompactionMarker struct {
	StartTimestamp   time.Time
	EndTimestamp     time.Time
	CompactedContent string
}
