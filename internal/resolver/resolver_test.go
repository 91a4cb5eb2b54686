package resolver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgehost/panel/internal/catalog"
	"github.com/forgehost/panel/internal/model"
)

func TestResolveForgeReturnsInstallerRun(t *testing.T) {
	t.Parallel()

	r := New(catalog.New("http://unused.invalid", "k", nil))
	plan, err := r.Resolve(t.Context(), model.EngineForge, "1.20.1-47.2.0")
	require.NoError(t, err)
	assert.Equal(t, PlanInstallerRun, plan.Kind)
	assert.Contains(t, plan.URL, "forge-1.20.1-47.2.0-installer.jar")
	assert.Equal(t, []string{"java", "-jar", "installer.jar", "--installServer"}, plan.Argv)
}

func TestResolveForgeRejectsMalformedVersion(t *testing.T) {
	t.Parallel()

	r := New(catalog.New("http://unused.invalid", "k", nil))
	_, err := r.Resolve(t.Context(), model.EngineForge, "not-a-valid-version-string")
	require.NoError(t, err) // "not-a-valid-version-string" still splits on the first "-"

	_, err = r.Resolve(t.Context(), model.EngineForge, "noseparator")
	require.Error(t, err)
}

func TestResolveFabricComposesURL(t *testing.T) {
	t.Parallel()

	r := New(catalog.New("http://unused.invalid", "k", nil))
	plan, err := r.Resolve(t.Context(), model.EngineFabric, "0.15.11")
	require.NoError(t, err)
	assert.Equal(t, PlanDirectJar, plan.Kind)
	assert.Equal(t, "https://meta.fabricmc.net/v2/versions/loader/0.15.11/latest/latest/server/jar", plan.URL)
}

func TestNeoForgeGameVersionDerivation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"21.0.45", "1.21"},
		{"20.4.190", "1.20.4"},
		{"21.1.0", "1.21.1"},
	}
	for _, c := range cases {
		got, err := NeoForgeGameVersion(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestResolveVanillaWalksManifestThenDetail(t *testing.T) {
	t.Parallel()

	detailSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"downloads":{"server":{"url":"https://example.invalid/server.jar"}}}`))
	}))
	defer detailSrv.Close()

	// resolveVanilla hardcodes the Mojang manifest URL; exercise the parsing
	// helpers directly against these fixtures instead of monkeypatching the
	// client's base URL.
	detailURL, err := findVanillaVersionDetailURL([]byte(`{"versions":[{"id":"1.20.4","url":"`+detailSrv.URL+`"}]}`), "1.20.4")
	require.NoError(t, err)
	assert.Equal(t, detailSrv.URL, detailURL)

	serverURL, err := findVanillaServerDownloadURL([]byte(`{"downloads":{"server":{"url":"https://example.invalid/server.jar"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "https://example.invalid/server.jar", serverURL)
}
