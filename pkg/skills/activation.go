package skills

import (
	"fmt"
	"time"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/registry"
)

// ActivationResult mirrors the tool-call response shape original_source's
// activate_skill_tool.py returns: a status string the model sees, plus the
// instructions and tool names it just gained.
type ActivationResult struct {
	Status       string // "success" or "already_activated"
	Message      string
	SkillName    string
	ToolsLoaded  int
	ToolNames    []string
	Instructions string
}

// maxInstructionPreview truncates the instructions echoed back in the tool
// result, matching the 1000-character cap on the reported preview text.
const maxInstructionPreview = 1000

// Activate loads a skill into the given task's live context, idempotently.
// Re-activating an already-active skill returns status "already_activated"
// without re-reading the skill file or re-registering its tools.
func (r *Registry) Activate(taskCtx *registry.TaskContext, name string) (*ActivationResult, error) {
	if existing, ok := taskCtx.ActivatedSkill(name); ok {
		return &ActivationResult{
			Status:       "already_activated",
			Message:      fmt.Sprintf("Skill %q is already active for this task.", name),
			SkillName:    name,
			ToolsLoaded:  len(existing.Tools),
			ToolNames:    existing.ToolNames(),
			Instructions: truncate(existing.FullContent, maxInstructionPreview),
		}, nil
	}

	if !r.Has(name) {
		return nil, fmt.Errorf("skill %q not found", name)
	}

	activated, err := r.Load(name)
	if err != nil {
		return nil, err
	}
	activated.ActivationTime = time.Now()

	if !taskCtx.ActivateSkill(activated) {
		// Lost a race with a concurrent activation of the same skill; fall
		// back to whatever won.
		won, _ := taskCtx.ActivatedSkill(name)
		return &ActivationResult{
			Status:       "already_activated",
			Message:      fmt.Sprintf("Skill %q is already active for this task.", name),
			SkillName:    name,
			ToolsLoaded:  len(won.Tools),
			ToolNames:    won.ToolNames(),
			Instructions: truncate(won.FullContent, maxInstructionPreview),
		}, nil
	}

	var toolNames []string
	for _, t := range activated.Tools {
		toolNames = append(toolNames, t.Name)
	}

	return &ActivationResult{
		Status:       "success",
		Message:      fmt.Sprintf("Activated skill %q.", name),
		SkillName:    name,
		ToolsLoaded:  len(activated.Tools),
		ToolNames:    toolNames,
		Instructions: truncate(activated.FullContent, maxInstructionPreview),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
