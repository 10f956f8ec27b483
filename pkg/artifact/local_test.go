package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadLatest(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	saved1, err := store.Save(ctx, "app1", "user1", "sess1", "report.txt", []byte("v1"), Metadata{MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, 1, saved1.Version)

	saved2, err := store.Save(ctx, "app1", "user1", "sess1", "report.txt", []byte("v2"), Metadata{MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, 2, saved2.Version)

	data, meta, err := store.Load(ctx, BuildURI("app1", "user1", "sess1", "report.txt", 0))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	assert.Equal(t, 2, meta.Version)
}

func TestLoadSpecificVersion(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Save(ctx, "app1", "u", "s", "f.txt", []byte("first"), Metadata{})
	require.NoError(t, err)
	_, err = store.Save(ctx, "app1", "u", "s", "f.txt", []byte("second"), Metadata{})
	require.NoError(t, err)

	data, meta, err := store.Load(ctx, BuildURI("app1", "u", "s", "f.txt", 1))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	assert.Equal(t, 1, meta.Version)
}

func TestListVersionsAndList(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Save(ctx, "app1", "u", "s", "a.txt", []byte("a"), Metadata{})
	require.NoError(t, err)
	_, err = store.Save(ctx, "app1", "u", "s", "a.txt", []byte("aa"), Metadata{})
	require.NoError(t, err)
	_, err = store.Save(ctx, "app1", "u", "s", "b.txt", []byte("b"), Metadata{})
	require.NoError(t, err)

	versions, err := store.ListVersions(ctx, "app1", "u", "s", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)

	all, err := store.List(ctx, "app1", "u", "s")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteRemovesAllVersions(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Save(ctx, "app1", "u", "s", "a.txt", []byte("a"), Metadata{})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "app1", "u", "s", "a.txt"))

	_, _, err = store.Load(ctx, BuildURI("app1", "u", "s", "a.txt", 0))
	assert.Error(t, err)
}

func TestParseAndBuildURIRoundTrip(t *testing.T) {
	uri := BuildURI("app1", "user1", "sess1", "file.png", 3)
	parts, err := ParseURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "app1", parts.App)
	assert.Equal(t, "user1", parts.User)
	assert.Equal(t, "sess1", parts.Session)
	assert.Equal(t, "file.png", parts.Filename)
	assert.Equal(t, 3, parts.Version)
}

func TestParseURIRejectsWrongScheme(t *testing.T) {
	_, err := ParseURI("https://example.com/foo")
	assert.Error(t, err)
}
