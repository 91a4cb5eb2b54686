package configwriter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgehost/panel/internal/model"
)

func TestWriteProducesPropertiesAndEula(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rec := model.ServerRecord{
		Port:    25565,
		Options: model.DefaultGameOptions(),
	}
	require.NoError(t, Write(dir, rec))

	props, err := os.ReadFile(filepath.Join(dir, "server.properties"))
	require.NoError(t, err)
	assert.Contains(t, string(props), "server-port=25565\n")
	assert.Contains(t, string(props), "rcon.port=35565\n")

	eula, err := os.ReadFile(filepath.Join(dir, "eula.txt"))
	require.NoError(t, err)
	assert.Equal(t, "eula=true\n", string(eula))
}

func TestWriteMemoryArgsCapsMinHeapAt1024(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, WriteMemoryArgs(dir, 4096, "-Dfoo=bar"))

	data, err := os.ReadFile(filepath.Join(dir, "user_jvm_args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "-Xmx4096M -Xms1024M -Dfoo=bar\n", string(data))
}

func TestWriteMemoryArgsBelowCap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, WriteMemoryArgs(dir, 512, ""))

	data, err := os.ReadFile(filepath.Join(dir, "user_jvm_args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "-Xmx512M -Xms512M\n", string(data))
}
