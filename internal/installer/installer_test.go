package installer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectExistingPrefersScriptOverJar(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "paper-1.20.jar"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"), 0o755))

	d, ok, err := DetectExisting(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DescriptorScript, d.Kind)
	assert.Equal(t, filepath.Join(dir, "run.sh"), d.Path)
}

func TestDetectExistingIgnoresInstallerJars(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "forge-installer.jar"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "forge-1.20.1-47.2.0-server.jar"), []byte("x"), 0o644))

	d, ok, err := DetectExisting(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DescriptorJar, d.Kind)
	assert.Equal(t, filepath.Join(dir, "forge-1.20.1-47.2.0-server.jar"), d.Path)
}

func TestDetectExistingPicksFirstJarWhenNoKeywordMatches(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zzz.jar"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aaa.jar"), []byte("x"), 0o644))

	d, ok, err := DetectExisting(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "aaa.jar"), d.Path)
}

func TestDetectExistingReturnsFalseWhenNothingFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, ok, err := DetectExisting(dir)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTailLinesTruncatesToLastN(t *testing.T) {
	t.Parallel()

	s := "l1\nl2\nl3\nl4\nl5\n"
	assert.Equal(t, "l4\nl5", tailLines(s, 2))
	assert.Equal(t, "l1\nl2\nl3\nl4\nl5", tailLines(s, 10))
}
