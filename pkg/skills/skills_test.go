package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/registry"
)

func writeSkill(t *testing.T, dir, name, extra string) string {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	body := "---\nname: " + name + "\ndescription: does things with " + name + "\n" + extra + "---\n\n# " + name + "\n\nInstructions body.\n"
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(body), 0o644))
	return skillDir
}

func TestDiscoverAndCatalog(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "weather", "")
	writeSkill(t, root, "maps", "")

	r := NewRegistry()
	require.NoError(t, r.Discover([]string{root}, false))

	catalog := r.Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, "maps", catalog[0].Name)
	assert.Equal(t, "weather", catalog[1].Name)
	assert.True(t, r.Has("weather"))
	assert.False(t, r.Has("unknown"))
}

func TestDiscoverRecursive(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "group")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	writeSkill(t, nested, "deep-skill", "")

	r := NewRegistry()
	require.NoError(t, r.Discover([]string{root}, true))

	assert.True(t, r.Has("deep-skill"))
}

func TestDiscoverNonRecursiveIgnoresNestedSkills(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "group")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	writeSkill(t, nested, "deep-skill", "")

	r := NewRegistry()
	require.NoError(t, r.Discover([]string{root}, false))

	assert.False(t, r.Has("deep-skill"))
}

func TestDuplicateNameFirstWins(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "weather", "")
	other := t.TempDir()
	dupDir := filepath.Join(other, "weather")
	require.NoError(t, os.MkdirAll(dupDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dupDir, "SKILL.md"),
		[]byte("---\nname: weather\ndescription: a different weather skill\n---\nbody\n"), 0o644))

	r := NewRegistry()
	require.NoError(t, r.Discover([]string{root}, false))
	require.NoError(t, r.Discover([]string{other}, false))

	loaded, err := r.Load("weather")
	require.NoError(t, err)
	assert.Equal(t, "does things with weather", loaded.Description)
}

func TestLoadWithTools(t *testing.T) {
	root := t.TempDir()
	skillDir := writeSkill(t, root, "weather", "")
	toolsYAML := `tools:
  - name: forecast
    description: get a forecast
    inputSchema:
      type: object
`
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "weather.tools.yaml"), []byte(toolsYAML), 0o644))

	r := NewRegistry()
	require.NoError(t, r.Discover([]string{root}, false))

	loaded, err := r.Load("weather")
	require.NoError(t, err)
	require.Len(t, loaded.Tools, 1)
	assert.Equal(t, "forecast_weather", loaded.Tools[0].Name)
	assert.Contains(t, loaded.Tools[0].Description, "Loaded by skill weather")
}

func TestLoadWithInvalidToolsFailsSchema(t *testing.T) {
	root := t.TempDir()
	skillDir := writeSkill(t, root, "weather", "")
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "weather.tools.yaml"),
		[]byte("tools:\n  - description: missing a name\n"), 0o644))

	r := NewRegistry()
	require.NoError(t, r.Discover([]string{root}, false))

	_, err := r.Load("weather")
	assert.Error(t, err)
}

func TestReadResourceRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	skillDir := writeSkill(t, root, "weather", "")
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "data.csv"), []byte("a,b\n1,2\n"), 0o644))
	secretDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(secretDir, "secret.txt"), []byte("top secret"), 0o644))

	r := NewRegistry()
	require.NoError(t, r.Discover([]string{root}, false))

	data, err := r.ReadResource("weather", "data.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	relPath, err := filepath.Rel(skillDir, filepath.Join(secretDir, "secret.txt"))
	require.NoError(t, err)
	_, err = r.ReadResource("weather", relPath)
	assert.ErrorIs(t, err, ErrPathTraversal)

	_, err = r.ReadResource("weather", "../../../../etc/passwd")
	assert.Error(t, err)
}

func TestActivateIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "weather", "")

	r := NewRegistry()
	require.NoError(t, r.Discover([]string{root}, false))

	taskCtx := registry.NewTaskContext("task-1", "session-1")

	first, err := r.Activate(taskCtx, "weather")
	require.NoError(t, err)
	assert.Equal(t, "success", first.Status)
	assert.Contains(t, first.Instructions, "Instructions body")

	second, err := r.Activate(taskCtx, "weather")
	require.NoError(t, err)
	assert.Equal(t, "already_activated", second.Status)
	assert.Equal(t, first.ToolsLoaded, second.ToolsLoaded)
}

func TestActivateUnknownSkillErrors(t *testing.T) {
	r := NewRegistry()
	taskCtx := registry.NewTaskContext("task-1", "session-1")
	_, err := r.Activate(taskCtx, "nonexistent")
	assert.Error(t, err)
}

func TestParseMissingFrontmatterFieldsSkipped(t *testing.T) {
	root := t.TempDir()
	skillDir := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte("---\nname: broken\n---\nbody\n"), 0o644))

	r := NewRegistry()
	require.NoError(t, r.Discover([]string{root}, false))
	assert.False(t, r.Has("broken"))
}
