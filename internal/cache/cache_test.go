package cache

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutOpenRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	hash, size, err := c.Put(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.EqualValues(t, len("hello world"), size)
	assert.True(t, c.Has(hash))

	r, err := c.Open(hash)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello world", string(data))
}

func TestPutIsIdempotentByContent(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	h1, _, err := c.Put(strings.NewReader("same content"))
	require.NoError(t, err)
	h2, _, err := c.Put(strings.NewReader("same content"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestPutLeavesNoTempFilesInCacheRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, nil)
	require.NoError(t, err)

	hash, _, err := c.Put(strings.NewReader("durable content"))
	require.NoError(t, err)

	// Only the final object should exist under objects/, no leftover temp files.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		if e.Name() != "objects" {
			t.Fatalf("unexpected leftover entry in cache root: %s", e.Name())
		}
	}
	assert.True(t, c.Has(hash))
}

func TestRememberLookup(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	c.Remember("Vanilla", "1.20.4", "deadbeef")
	got, ok := c.Lookup("Vanilla", "1.20.4")
	require.True(t, ok)
	assert.Equal(t, "deadbeef", got)

	_, ok = c.Lookup("Vanilla", "1.21.0")
	assert.False(t, ok)
}
