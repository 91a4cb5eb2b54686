package safefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRejectsTraversal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	f := New(root)

	cases := []string{
		"../escape.txt",
		"a/../../escape.txt",
		"/etc/passwd",
		"../../../../etc/passwd",
	}
	for _, c := range cases {
		_, err := f.Resolve(c)
		require.Error(t, err)
		ae, ok := err.(*apierr.Error)
		require.True(t, ok)
		assert.Equal(t, apierr.InvalidPath, ae.Kind)
	}
}

func TestResolveAcceptsNestedRelativePath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	f := New(root)

	abs, err := f.Resolve("config/server.properties")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "config", "server.properties"), abs)
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	f := New(t.TempDir())
	require.NoError(t, f.Write("a/b/c.txt", []byte("hello")))

	data, err := f.Read("a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestListSortsDirectoriesFirst(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	f := New(root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "zzz_dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "aaa_file.txt"), []byte("x"), 0o644))

	entries, err := f.List(".")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, "zzz_dir", entries[0].Name)
	assert.False(t, entries[1].IsDir)
}

func TestDeleteMissingPathIsNotFound(t *testing.T) {
	t.Parallel()

	f := New(t.TempDir())
	err := f.Delete("nope.txt")
	require.Error(t, err)
	ae, ok := err.(*apierr.Error)
	require.True(t, ok)
	assert.Equal(t, apierr.NotFound, ae.Kind)
}
