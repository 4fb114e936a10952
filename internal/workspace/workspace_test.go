package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLayout(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base, WithRunID("r1"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "fanout-r1"), ws.Root)
	assert.Equal(t, filepath.Join(ws.Root, "ids"), ws.IDDir())
	assert.DirExists(t, ws.IDDir())
	assert.Equal(t, filepath.Join(ws.Root, "out", "works"), ws.OutputDir("works"))
	assert.Equal(t, filepath.Join(ws.Root, "logs", "works.log"), ws.LogPath("works"))

	_, err = New(base, WithRunID("r1"))
	assert.Error(t, err, "an existing tree is never reused")
}

func TestGeneratedRunID(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)
	b, err := New(t.TempDir())
	require.NoError(t, err)
	assert.NotEmpty(t, a.RunID)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestAddJobTruncatesLog(t *testing.T) {
	ws, err := New(t.TempDir(), WithRunID("r2"))
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(ws.LogPath("authors")), 0o755))
	require.NoError(t, os.WriteFile(ws.LogPath("authors"), []byte("stale\n"), 0o644))

	require.NoError(t, ws.AddJob("authors"))
	assert.DirExists(t, ws.OutputDir("authors"))
	data, err := os.ReadFile(ws.LogPath("authors"))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestExternalIDDir(t *testing.T) {
	ids := t.TempDir()
	ws, err := New(t.TempDir(), WithIDDir(ids))
	require.NoError(t, err)
	assert.Equal(t, ids, ws.IDDir())
	assert.NoDirExists(t, filepath.Join(ws.Root, "ids"))

	require.NoError(t, ws.Close(false))
	assert.DirExists(t, ids, "an external id dir is not part of the tree")
}

func TestClose(t *testing.T) {
	t.Run("remove", func(t *testing.T) {
		ws, err := New(t.TempDir())
		require.NoError(t, err)
		require.NoError(t, ws.AddJob("a"))
		require.NoError(t, ws.Close(false))
		assert.NoDirExists(t, ws.Root)
		assert.NoError(t, ws.Close(false))
	})

	t.Run("keep", func(t *testing.T) {
		ws, err := New(t.TempDir())
		require.NoError(t, err)
		require.NoError(t, ws.Close(true))
		assert.DirExists(t, ws.Root)
	})
}

func TestPlanDoesNotTouchDisk(t *testing.T) {
	base := t.TempDir()
	ws := Plan(base, WithRunID("dry"))
	assert.Equal(t, filepath.Join(base, "fanout-dry", "logs", "a.log"), ws.LogPath("a"))
	assert.NoDirExists(t, ws.Root)
}
