package skills

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const (
	frontmatterDelim  = "---"
	toolsFileSuffix   = ".tools.yaml"
	maxDescriptionLen = 1024
)

// toolDeclarationSchemaLoader holds the JSON Schema every sibling tools.yaml file
// must satisfy, mirroring the teacher's bridge.go schema-building for
// A2A skill-to-tool conversion (pkg/types.ToolDescriptor.InputSchema is a
// plain map[string]any, so the declaration file's own inputSchema field
// is validated against a generic "is this a JSON Schema object" shape
// rather than a fixed Go struct).
var toolDeclarationSchemaLoader = gojsonschema.NewStringLoader(`{
  "type": "object",
  "properties": {
    "tools": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "description"],
        "properties": {
          "name": {"type": "string"},
          "description": {"type": "string"},
          "inputSchema": {"type": "object"}
        }
      }
    }
  }
}`)

// findSkillFile locates the markdown file with YAML front matter inside a
// skill directory. The teacher's SKILL.md convention is required verbatim;
// an optional sibling ".tools.yaml" declares tools.
func findSkillFile(dir string) (string, bool) {
	candidate := filepath.Join(dir, "SKILL.md")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, true
	}
	return "", false
}

// parseMetadata returns only the front matter of a SKILL.md file, for
// Phase 1 catalog discovery; the file is read whole and the body discarded.
func parseMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from directory discovery, not user input
	if err != nil {
		return Metadata{}, fmt.Errorf("reading skill file: %w", err)
	}
	meta, _, err := parseContent(data)
	return meta, err
}

// parseFull parses the front matter and body of a SKILL.md file, plus any
// sibling tool declarations in the same directory.
func parseFull(path string) (loadedSkill, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return loadedSkill{}, fmt.Errorf("reading skill file: %w", err)
	}
	meta, body, err := parseContent(data)
	if err != nil {
		return loadedSkill{}, err
	}
	dir := filepath.Dir(path)
	tools, err := loadSiblingTools(dir)
	if err != nil {
		return loadedSkill{}, err
	}
	return loadedSkill{meta: meta, dir: dir, body: body, tools: tools}, nil
}

// parseContent splits SKILL.md content into front matter and body and
// validates the required fields.
func parseContent(content []byte) (Metadata, string, error) {
	fm, body, err := splitFrontmatter(content)
	if err != nil {
		return Metadata{}, "", err
	}
	var meta Metadata
	if err := yaml.Unmarshal(fm, &meta); err != nil {
		return Metadata{}, "", fmt.Errorf("invalid front matter: %w", err)
	}
	if meta.Name == "" {
		return Metadata{}, "", fmt.Errorf("skill is missing required frontmatter field: name")
	}
	if meta.Description == "" {
		return Metadata{}, "", fmt.Errorf("skill %q is missing required frontmatter field: description", meta.Name)
	}
	if len(meta.Description) > maxDescriptionLen {
		return Metadata{}, "", fmt.Errorf("skill %q description exceeds %d characters", meta.Name, maxDescriptionLen)
	}
	return meta, body, nil
}

// splitFrontmatter splits `---\n<yaml>\n---\n<body>` content.
func splitFrontmatter(content []byte) (fm []byte, body string, err error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return nil, "", fmt.Errorf("empty skill file")
	}
	if !bytes.HasPrefix(trimmed, []byte(frontmatterDelim)) {
		return nil, "", fmt.Errorf("missing frontmatter: file must start with ---")
	}
	rest := trimmed[len(frontmatterDelim):]
	rest = bytes.TrimPrefix(rest, []byte("\r\n"))
	rest = bytes.TrimPrefix(rest, []byte("\n"))

	lines := bytes.SplitAfter(rest, []byte("\n"))
	var fmLen int
	for i, line := range lines {
		if bytes.Equal(bytes.TrimRight(line, "\r\n"), []byte(frontmatterDelim)) {
			fm = rest[:fmLen]
			body = strings.TrimSpace(string(bytes.Join(lines[i+1:], nil)))
			return fm, body, nil
		}
		fmLen += len(line)
	}
	return nil, "", fmt.Errorf("missing closing frontmatter delimiter ---")
}

// loadSiblingTools reads and validates the skill directory's optional
// tools declaration file, if present. Absence is not an error: a skill
// without declared tools simply contributes no tools on activation.
func loadSiblingTools(dir string) ([]ToolDeclaration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading skill directory: %w", err)
	}
	var toolsPath string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), toolsFileSuffix) {
			toolsPath = filepath.Join(dir, e.Name())
			break
		}
	}
	if toolsPath == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(toolsPath) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("reading tool declarations: %w", err)
	}

	var doc struct {
		Tools []ToolDeclaration `yaml:"tools"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid tool declarations in %s: %w", toolsPath, err)
	}

	asJSON, err := yamlToJSONDoc(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encoding tool declarations for validation: %w", err)
	}
	result, err := gojsonschema.Validate(toolDeclarationSchemaLoader, gojsonschema.NewGoLoader(asJSON))
	if err != nil {
		return nil, fmt.Errorf("validating tool declarations in %s: %w", toolsPath, err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("tool declarations in %s failed schema validation: %v", toolsPath, result.Errors())
	}

	return doc.Tools, nil
}

// yamlToJSONDoc re-expresses a yaml.v3-decoded struct as the
// map[string]any gojsonschema.NewGoLoader expects, since yaml.v3 may
// produce map[string]any directly already but doc is a typed struct here.
// Fields left empty in the file are omitted, so the schema's required and
// type checks see them as absent.
func yamlToJSONDoc(doc struct {
	Tools []ToolDeclaration `yaml:"tools"`
}) (map[string]any, error) {
	tools := make([]any, 0, len(doc.Tools))
	for _, t := range doc.Tools {
		tool := map[string]any{}
		if t.Name != "" {
			tool["name"] = t.Name
		}
		if t.Description != "" {
			tool["description"] = t.Description
		}
		if t.InputSchema != nil {
			tool["inputSchema"] = t.InputSchema
		}
		tools = append(tools, tool)
	}
	return map[string]any{"tools": tools}, nil
}
