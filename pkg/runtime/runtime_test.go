package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/config"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/registry"
)

func TestNewWiresEveryCollaborator(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Defaults()
	cfg.DatabaseURL = "redis://" + mr.Addr() + "/0"

	rt, err := New(context.Background(), cfg, t.TempDir())
	require.NoError(t, err)
	defer rt.Close(context.Background(), time.Second)

	assert.NotNil(t, rt.Registry)
	assert.NotNil(t, rt.Buffer)
	assert.NotNil(t, rt.Mesh)
	assert.NotNil(t, rt.Artifacts)
	assert.NotNil(t, rt.Skills)
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	cfg := config.Defaults()
	cfg.DatabaseURL = "redis://127.0.0.1:1/0"

	_, err := New(context.Background(), cfg, t.TempDir())
	assert.Error(t, err)
}

func TestCloseCancelsEveryRegisteredTask(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Defaults()
	cfg.DatabaseURL = "redis://" + mr.Addr() + "/0"

	rt, err := New(context.Background(), cfg, t.TempDir())
	require.NoError(t, err)

	tc := registry.NewTaskContext("t1", "s1")
	require.NoError(t, rt.Registry.Create(tc))

	require.NoError(t, rt.Close(context.Background(), time.Second))
	assert.True(t, tc.Cancellation.Canceled())
}
