// Package skills implements Skills & Activation (spec.md §4.7): discovery
// of SKILL.md folders into a lightweight catalog, and on-demand activation
// of the full skill body plus its declared tools into a live TaskContext.
//
// Grounded on teacher's runtime/skills/{types.go,parser.go,registry.go,executor.go}
// (frontmatter parsing, path-traversal-safe resource reads, first-wins
// duplicate handling) and original_source's activate_skill_tool.py for the
// {toolName}_{skillName} naming convention and already_activated semantics.
package skills

import "github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"

// Metadata holds the YAML front matter parsed from a skill's markdown file:
// the Phase 1 data loaded at startup discovery time.
type Metadata struct {
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description" json:"description"`
	AllowedTools []string `yaml:"allowed-tools,omitempty" json:"allowedTools,omitempty"`
}

// CatalogEntry returns the spec.md §3 SkillCatalogEntry view of this skill.
func (m Metadata) CatalogEntry(path string, hasTools bool) types.SkillCatalogEntry {
	return types.SkillCatalogEntry{
		Name:         m.Name,
		Description:  m.Description,
		Path:         path,
		HasTools:     hasTools,
		AllowedTools: m.AllowedTools,
	}
}

// ToolDeclaration is one entry of a skill's sibling tool-declarations YAML
// file. InputSchema carries the raw JSON Schema object describing the
// tool's arguments; at load time it is only checked to be an object.
type ToolDeclaration struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	InputSchema map[string]any `yaml:"inputSchema,omitempty" json:"inputSchema,omitempty"`
}

// loadedSkill is the full Phase 2 record: front matter, markdown body, and
// any declared tools, keyed by directory so resource reads can be
// path-traversal-checked against it.
type loadedSkill struct {
	meta  Metadata
	dir   string // empty for a skill with no backing directory
	body  string
	tools []ToolDeclaration
}
