package registry

import (
	"fmt"
	"sync"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// Registry is a lock-protected map of LogicalTaskID to TaskContext, owned
// exclusively by one hop (a gateway or a proxy instance never shares a
// Registry with another).
type Registry struct {
	mu       sync.RWMutex
	contexts map[types.LogicalTaskID]*TaskContext
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{contexts: make(map[types.LogicalTaskID]*TaskContext)}
}

// Create registers ctx under its LogicalTaskID. Fails if the id is already present.
func (r *Registry) Create(ctx *TaskContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contexts[ctx.LogicalTaskID]; exists {
		return fmt.Errorf("task context %q already exists", ctx.LogicalTaskID)
	}
	r.contexts[ctx.LogicalTaskID] = ctx
	return nil
}

// Get returns the context for id, if present.
func (r *Registry) Get(id types.LogicalTaskID) (*TaskContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctx, ok := r.contexts[id]
	return ctx, ok
}

// Remove deletes the context for id. No-op if absent.
func (r *Registry) Remove(id types.LogicalTaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, id)
}

// ForEach invokes action for every live context, under a read lock. Used
// for shutdown broadcast cancellation; action must not call back into the
// registry (Create/Remove) or it will deadlock.
func (r *Registry) ForEach(action func(*TaskContext)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ctx := range r.contexts {
		action(ctx)
	}
}

// Len returns the number of live contexts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}

// CancelAll sets the cancellation token on every live context; used during
// shutdown (spec.md §5 Cleanup).
func (r *Registry) CancelAll() {
	r.ForEach(func(ctx *TaskContext) {
		ctx.Cancellation.Cancel()
	})
}
