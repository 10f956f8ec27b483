package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaultsThenOverrides(t *testing.T) {
	path := writeTempConfig(t, `
namespace: myns
port: 9090
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "myns", cfg.Namespace)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 1000, cfg.AsyncQueueSize) // default, not overridden
}

func TestLoadOptionsOverrideFileValues(t *testing.T) {
	path := writeTempConfig(t, `namespace: fromfile`)
	cfg, err := Load(path, WithNamespace("fromopt"), WithPort(1234))
	require.NoError(t, err)
	assert.Equal(t, "fromopt", cfg.Namespace)
	assert.Equal(t, 1234, cfg.Port)
}

func TestValidateRejectsMissingNamespace(t *testing.T) {
	cfg := Defaults()
	cfg.Namespace = ""
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsExternalAuthWithoutProviderURL(t *testing.T) {
	cfg := Defaults()
	cfg.AuthMode = "external"
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Defaults().Validate())
}

func TestDurationHelpers(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 300, int(cfg.DeploymentTimeout().Seconds()))
	assert.Equal(t, 300, int(cfg.RequestForwardTimeout().Seconds()))
	assert.Equal(t, 60, int(cfg.DiscoveryInterval().Seconds()))
}
