package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestFindFilesByExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.hcl"))
	writeFile(t, filepath.Join(root, "nested", "b.hcl"))
	writeFile(t, filepath.Join(root, "nested", "c.txt"))
	writeFile(t, filepath.Join(root, "node_modules", "d.hcl"))
	writeFile(t, filepath.Join(root, "dist", "e.hcl"))

	files, err := FindFilesByExtension(root, ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.hcl"),
		filepath.Join(root, "nested", "b.hcl"),
	}, files)

	single, err := FindFilesByExtension(filepath.Join(root, "a.hcl"), ".hcl")
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = FindFilesByExtension(filepath.Join(root, "missing"), ".hcl")
	assert.Error(t, err)

	assert.Panics(t, func() { _, _ = FindFilesByExtension(root, "") })
}

func TestResetDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dist")
	writeFile(t, filepath.Join(dir, "stale.zip"))

	require.NoError(t, ResetDir(dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSlashRel(t *testing.T) {
	rel, err := SlashRel("/project", filepath.Join("/project", "steps", "a.ts"))
	require.NoError(t, err)
	assert.Equal(t, "steps/a.ts", rel)
}

func TestHasFileWithExtension(t *testing.T) {
	assert.True(t, HasFileWithExtension([]string{"a.ts", "b.py"}, ".py"))
	assert.False(t, HasFileWithExtension([]string{"a.ts"}, ".py"))
}
