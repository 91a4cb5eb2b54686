package provisioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgehost/panel/internal/model"
)

func TestParseManifestRejectsMissingMinecraftVersion(t *testing.T) {
	t.Parallel()

	_, err := parseManifest([]byte(`{"name": "pack"}`))
	require.Error(t, err)
}

func TestParseManifestRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := parseManifest([]byte(`not json`))
	require.Error(t, err)
}

func TestClassifyForge(t *testing.T) {
	t.Parallel()

	m, err := parseManifest([]byte(`{
		"minecraft": {"version": "1.20.1", "modLoaders": [{"id": "forge-47.2.0", "primary": true}]},
		"overrides": "overrides",
		"files": []
	}`))
	require.NoError(t, err)

	engine, version := m.classify()
	assert.Equal(t, model.EngineForge, engine)
	assert.Equal(t, "1.20.1-47.2.0", version)
}

func TestClassifyFabricFallsBackWhenVersionEmpty(t *testing.T) {
	t.Parallel()

	m, err := parseManifest([]byte(`{
		"minecraft": {"version": "1.20.1", "modLoaders": [{"id": "fabric-", "primary": true}]}
	}`))
	require.NoError(t, err)

	engine, version := m.classify()
	assert.Equal(t, model.EngineFabric, engine)
	assert.Equal(t, "0.15.11", version)
}

func TestClassifyNeoForge(t *testing.T) {
	t.Parallel()

	m, err := parseManifest([]byte(`{
		"minecraft": {"version": "1.21", "modLoaders": [{"id": "neoforge-21.1.0", "primary": true}]}
	}`))
	require.NoError(t, err)

	engine, version := m.classify()
	assert.Equal(t, model.EngineNeoForge, engine)
	assert.Equal(t, "21.1.0", version)
}

func TestClassifyDefaultsToVanillaWithNoLoader(t *testing.T) {
	t.Parallel()

	m, err := parseManifest([]byte(`{"minecraft": {"version": "1.20.1"}}`))
	require.NoError(t, err)

	engine, version := m.classify()
	assert.Equal(t, model.EngineVanilla, engine)
	assert.Equal(t, "1.20.1", version)
}
