// Package registry implements the Task Context Registry (spec.md §4.3): a
// lock-protected map from LogicalTaskID to TaskContext, held separately by
// each hop (gateway or proxy). Per spec.md §9, TaskContexts live in an
// arena-like map keyed by id rather than being passed around by pointer
// through cyclic references; callers that need to refer back to a context
// from elsewhere store the id, not the pointer.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// CancellationToken is a self-contained, observable boolean-settable flag.
// Forwarders and handlers sample it between IO operations (spec.md §5).
type CancellationToken struct {
	flag atomic.Bool
}

// Cancel sets the token. Idempotent.
func (c *CancellationToken) Cancel() { c.flag.Store(true) }

// Canceled reports whether Cancel has been called.
func (c *CancellationToken) Canceled() bool { return c.flag.Load() }

// TaskContext is the per-task mutable record held by gateway and proxy
// alike (spec.md §3).
type TaskContext struct {
	LogicalTaskID    types.LogicalTaskID
	JSONRPCRequestID types.JSONRPCRequestID
	StatusTopic      string
	ReplyToTopic     string
	ClientID         string // empty unless interactive
	UserIdentity     UserIdentity
	SessionID        types.SessionID
	AppNameForArtifacts string
	StartTimeEpoch   int64
	Cancellation     CancellationToken

	mu                    sync.Mutex
	producedArtifacts     []types.ProducedArtifactManifestEntry
	activatedSkills       map[string]*types.ActivatedSkill
	compactionState       any
}

// UserIdentity identifies the caller that originated a task.
type UserIdentity struct {
	ID     string
	Name   string
	Email  string
	Source string
}

// NewTaskContext creates a TaskContext with StartTimeEpoch set to now.
func NewTaskContext(id types.LogicalTaskID, sessionID types.SessionID) *TaskContext {
	return &TaskContext{
		LogicalTaskID:   id,
		SessionID:       sessionID,
		StartTimeEpoch:  time.Now().Unix(),
		activatedSkills: make(map[string]*types.ActivatedSkill),
	}
}

// AddProducedArtifact appends an entry to the produced-artifact manifest.
func (tc *TaskContext) AddProducedArtifact(filename string, version int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.producedArtifacts = append(tc.producedArtifacts, types.ProducedArtifactManifestEntry{
		Filename: filename,
		Version:  version,
	})
}

// ProducedArtifacts returns a copy of the produced-artifact manifest.
func (tc *TaskContext) ProducedArtifacts() []types.ProducedArtifactManifestEntry {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make([]types.ProducedArtifactManifestEntry, len(tc.producedArtifacts))
	copy(out, tc.producedArtifacts)
	return out
}

// ActivateSkill records an activated skill on this context. Returns false
// if the skill was already activated (caller should report
// "already_activated" rather than re-running activation side effects).
func (tc *TaskContext) ActivateSkill(skill *types.ActivatedSkill) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if _, exists := tc.activatedSkills[skill.Name]; exists {
		return false
	}
	tc.activatedSkills[skill.Name] = skill
	return true
}

// ActivatedSkill returns the named skill if it has been activated on this context.
func (tc *TaskContext) ActivatedSkill(name string) (*types.ActivatedSkill, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	s, ok := tc.activatedSkills[name]
	return s, ok
}

// ActivatedSkillNames returns the names of every skill activated on this context.
func (tc *TaskContext) ActivatedSkillNames() []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	names := make([]string, 0, len(tc.activatedSkills))
	for name := range tc.activatedSkills {
		names = append(names, name)
	}
	return names
}

// SetCompactionState stores arbitrary conversation-compaction state
// (pkg/agent owns its shape; the registry only carries it).
func (tc *TaskContext) SetCompactionState(state any) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.compactionState = state
}

// CompactionState retrieves the stored conversation-compaction state.
func (tc *TaskContext) CompactionState() any {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.compactionState
}
