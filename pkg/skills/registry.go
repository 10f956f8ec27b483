package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/types"
)

// ErrPathTraversal is returned when a requested resource path escapes its
// skill's directory.
var ErrPathTraversal = errors.New("resource path escapes skill directory")

// entry is what the Registry tracks per discovered skill: just enough to
// reload the full body on demand without re-walking the filesystem.
type entry struct {
	meta Metadata
	path string // skill directory
}

// Registry holds the catalog discovered at startup (spec.md §4.7).
type Registry struct {
	mu     sync.RWMutex
	skills map[string]entry // keyed by skill name, first-registration wins
	order  []string         // discovery order, for stable catalog listing
}

// NewRegistry creates an empty skill Registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]entry)}
}

// Discover scans each directory in dirs for skill folders containing a
// SKILL.md file. When autoDiscover is true, directories are walked
// recursively; otherwise only immediate subdirectories are scanned.
// Skills missing required front matter are skipped with a warning.
// Duplicate names resolve to the first occurrence encountered.
func (r *Registry) Discover(dirs []string, autoDiscover bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, dir := range dirs {
		if err := r.discoverDir(dir, autoDiscover); err != nil {
			return fmt.Errorf("discovering skills in %s: %w", dir, err)
		}
	}
	return nil
}

func (r *Registry) discoverDir(dir string, recursive bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("skills: configured skill path does not exist", "path", abs)
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", abs)
	}

	if !recursive {
		children, err := os.ReadDir(abs)
		if err != nil {
			return err
		}
		for _, c := range children {
			if !c.IsDir() {
				continue
			}
			r.registerFolder(filepath.Join(abs, c.Name()))
		}
		return nil
	}

	return filepath.Walk(abs, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !info.IsDir() {
			return nil
		}
		r.registerFolder(path)
		return nil
	})
}

// registerFolder registers the skill at dir if it contains a valid
// SKILL.md. Must be called with r.mu held for writing.
func (r *Registry) registerFolder(dir string) {
	skillFile, ok := findSkillFile(dir)
	if !ok {
		return
	}
	meta, err := parseMetadata(skillFile)
	if err != nil {
		logger.Warn("skills: skipping skill with invalid frontmatter", "path", skillFile, "error", err)
		return
	}
	if _, exists := r.skills[meta.Name]; exists {
		logger.Warn("skills: duplicate skill name ignored, first occurrence wins", "skill", meta.Name, "path", dir)
		return
	}
	r.skills[meta.Name] = entry{meta: meta, path: dir}
	r.order = append(r.order, meta.Name)
}

// Catalog returns the SkillCatalogEntry for every discovered skill, sorted
// by name, for inclusion in the system prompt's catalog section.
func (r *Registry) Catalog() []types.SkillCatalogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.SkillCatalogEntry, 0, len(r.skills))
	for _, name := range r.order {
		e := r.skills[name]
		hasTools := false
		if tools, err := loadSiblingTools(e.path); err == nil {
			hasTools = len(tools) > 0
		}
		out = append(out, e.meta.CatalogEntry(e.path, hasTools))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has reports whether a skill by that name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.skills[name]
	return ok
}

// Load reads the full skill body and declared tools from disk. Returns an
// error if the skill is not in the catalog.
func (r *Registry) Load(name string) (*types.ActivatedSkill, error) {
	r.mu.RLock()
	e, ok := r.skills[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("skill %q not found", name)
	}

	skillFile, found := findSkillFile(e.path)
	if !found {
		return nil, fmt.Errorf("skill %q: SKILL.md missing from %s", name, e.path)
	}
	loaded, err := parseFull(skillFile)
	if err != nil {
		return nil, fmt.Errorf("loading skill %q: %w", name, err)
	}

	descriptors := make([]types.ToolDescriptor, 0, len(loaded.tools))
	for _, t := range loaded.tools {
		descriptors = append(descriptors, types.ToolDescriptor{
			Name:        fmt.Sprintf("%s_%s", t.Name, name),
			Description: fmt.Sprintf("Loaded by skill %s: %s", name, t.Description),
			InputSchema: t.InputSchema,
		})
	}

	return &types.ActivatedSkill{
		Name:         loaded.meta.Name,
		Description:  loaded.meta.Description,
		Path:         loaded.dir,
		FullContent:  loaded.body,
		Tools:        descriptors,
		AllowedTools: loaded.meta.AllowedTools,
	}, nil
}

// ReadResource reads a file from within a skill's own directory, refusing
// any path that escapes it via ".." or a symlink (grounded on teacher's
// runtime/skills/registry.go ReadResource double EvalSymlinks check).
func (r *Registry) ReadResource(name, resourcePath string) ([]byte, error) {
	r.mu.RLock()
	e, ok := r.skills[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("skill %q not found", name)
	}

	baseDir, err := filepath.EvalSymlinks(e.path)
	if err != nil {
		return nil, fmt.Errorf("resolving skill directory: %w", err)
	}
	baseDir, err = filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}

	target := filepath.Clean(filepath.Join(baseDir, resourcePath))
	if !strings.HasPrefix(target, baseDir+string(filepath.Separator)) && target != baseDir {
		return nil, fmt.Errorf("%w: %s", ErrPathTraversal, resourcePath)
	}

	data, err := os.ReadFile(target) // #nosec G304 - traversal already checked above
	if err != nil {
		return nil, err
	}

	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		return nil, err
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(resolved, baseDir+string(filepath.Separator)) && resolved != baseDir {
		return nil, fmt.Errorf("%w: %s", ErrPathTraversal, resourcePath)
	}

	return data, nil
}
