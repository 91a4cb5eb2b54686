package provisioning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyOverridesPreservesSubdirectories(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dest := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(src, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "config", "mod.toml"), []byte("enabled=true"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "server.properties"), []byte("motd=hi"), 0o644))

	require.NoError(t, copyOverrides(src, dest))

	data, err := os.ReadFile(filepath.Join(dest, "config", "mod.toml"))
	require.NoError(t, err)
	assert.Equal(t, "enabled=true", string(data))

	data, err = os.ReadFile(filepath.Join(dest, "server.properties"))
	require.NoError(t, err)
	assert.Equal(t, "motd=hi", string(data))
}
