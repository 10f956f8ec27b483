package types

import "time"

// SkillCatalogEntry is the lightweight record loaded at agent startup from
// a skill's SKILL.md front matter — enough to list the skill in the system
// prompt's catalog without reading the full body.
type SkillCatalogEntry struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Path         string   `json:"path"`
	HasTools     bool     `json:"hasTools"`
	AllowedTools []string `json:"allowedTools,omitempty"`
}

// ToolDescriptor describes one tool loaded as part of an ActivatedSkill,
// with its public name already disambiguated as {toolName}_{skillName}.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ActivatedSkill is the full record created when activate_skill is called:
// the SKILL.md body plus resolved tool descriptors.
type ActivatedSkill struct {
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Path           string           `json:"path"`
	FullContent    string           `json:"fullContent"`
	Tools          []ToolDescriptor `json:"tools,omitempty"`
	AllowedTools   []string         `json:"allowedTools,omitempty"`
	ActivationTime time.Time        `json:"activationTime"`
}

// ToolNames returns the public, disambiguated names of every tool this
// skill contributes.
func (a ActivatedSkill) ToolNames() []string {
	names := make([]string, 0, len(a.Tools))
	for _, t := range a.Tools {
		names = append(names, t.Name)
	}
	return names
}
