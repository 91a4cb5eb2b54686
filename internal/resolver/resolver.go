// Package resolver maps (engine, version) to a FetchPlan describing how
// the Installer should materialize a runnable jar or script.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/catalog"
	"github.com/forgehost/panel/internal/model"
)

// PlanKind discriminates the two FetchPlan shapes.
type PlanKind string

const (
	PlanDirectJar    PlanKind = "DirectJar"
	PlanInstallerRun PlanKind = "InstallerRun"
)

// FetchPlan is one of {DirectJar(url), InstallerRun(url, argv)}.
type FetchPlan struct {
	Kind PlanKind
	URL  string
	Argv []string
}

// VersionChannel groups an "available versions" listing entry by channel
// (release/beta/alpha, or target game version).
type VersionChannel struct {
	Channel  string   `json:"channel"`
	Versions []string `json:"versions"`
}

// Resolver turns (engine, version) into a FetchPlan by chasing each
// engine family's upstream API.
type Resolver struct {
	catalogClient *catalog.Client
}

// New returns a Resolver. catalogClient is used only for the upstream HTTP
// fetches this component needs (version manifests, build listings); it is
// not gated by CatalogDisabled since these upstreams are unrelated to the
// mod catalog and need no API key.
func New(catalogClient *catalog.Client) *Resolver {
	return &Resolver{catalogClient: catalogClient}
}

// Resolve returns a FetchPlan for (engine, version).
func (r *Resolver) Resolve(ctx context.Context, engine model.Engine, version string) (FetchPlan, error) {
	switch engine {
	case model.EnginePaper, model.EngineFolia, model.EnginePurpur:
		return r.resolvePaperFamily(ctx, engine, version)
	case model.EngineVanilla:
		return r.resolveVanilla(ctx, version)
	case model.EngineFabric:
		return r.resolveFabric(version), nil
	case model.EngineSpigot, model.EngineBukkit:
		return r.resolveSpigotFamily(version), nil
	case model.EngineForge:
		return r.resolveForge(version)
	case model.EngineNeoForge:
		return r.resolveNeoForge(version), nil
	default:
		return FetchPlan{}, apierr.New(apierr.InvalidRequest, fmt.Sprintf("unsupported engine %q", engine), nil)
	}
}

// resolvePaperFamily chases the upstream project API to the latest build
// for "version", yielding a direct binary URL.
func (r *Resolver) resolvePaperFamily(ctx context.Context, engine model.Engine, version string) (FetchPlan, error) {
	project := strings.ToLower(string(engine))
	buildsURL := fmt.Sprintf("https://api.papermc.io/v2/projects/%s/versions/%s/builds", project, version)
	data, err := r.catalogClient.Download(ctx, buildsURL)
	if err != nil {
		return FetchPlan{}, err
	}

	latestBuild, err := parseLatestPaperBuild(data)
	if err != nil {
		return FetchPlan{}, err
	}

	url := fmt.Sprintf(
		"https://api.papermc.io/v2/projects/%s/versions/%s/builds/%d/downloads/%s-%s-%d.jar",
		project, version, latestBuild, project, version, latestBuild,
	)
	return FetchPlan{Kind: PlanDirectJar, URL: url}, nil
}

// resolveVanilla consults the official version manifest, finds version.id,
// fetches its detail document, and extracts downloads.server.url.
func (r *Resolver) resolveVanilla(ctx context.Context, version string) (FetchPlan, error) {
	manifestData, err := r.catalogClient.Download(ctx, "https://launchermeta.mojang.com/mc/game/version_manifest.json")
	if err != nil {
		return FetchPlan{}, err
	}
	detailURL, err := findVanillaVersionDetailURL(manifestData, version)
	if err != nil {
		return FetchPlan{}, err
	}

	detailData, err := r.catalogClient.Download(ctx, detailURL)
	if err != nil {
		return FetchPlan{}, err
	}
	serverURL, err := findVanillaServerDownloadURL(detailData)
	if err != nil {
		return FetchPlan{}, err
	}
	return FetchPlan{Kind: PlanDirectJar, URL: serverURL}, nil
}

func (r *Resolver) resolveFabric(version string) FetchPlan {
	return FetchPlan{
		Kind: PlanDirectJar,
		URL:  fmt.Sprintf("https://meta.fabricmc.net/v2/versions/loader/%s/latest/latest/server/jar", version),
	}
}

func (r *Resolver) resolveSpigotFamily(version string) FetchPlan {
	// Community mirror, no authentication; callers should treat resolution
	// failure here as recoverable via a user-supplied jar upload rather
	// than retrying indefinitely.
	return FetchPlan{
		Kind: PlanDirectJar,
		URL:  fmt.Sprintf("https://yivesmirror.com/files/spigot/spigot-%s.jar", version),
	}
}

func (r *Resolver) resolveForge(version string) (FetchPlan, error) {
	mcVersion, forgeVersion, ok := strings.Cut(version, "-")
	if !ok {
		return FetchPlan{}, apierr.New(apierr.InvalidRequest, "Forge version must be \"{mcVersion}-{forgeVersion}\"", map[string]any{"version": version})
	}
	url := fmt.Sprintf(
		"https://maven.minecraftforge.net/net/minecraftforge/forge/%s-%s/forge-%s-%s-installer.jar",
		mcVersion, forgeVersion, mcVersion, forgeVersion,
	)
	return FetchPlan{
		Kind: PlanInstallerRun,
		URL:  url,
		Argv: []string{"java", "-jar", "installer.jar", "--installServer"},
	}, nil
}

func (r *Resolver) resolveNeoForge(version string) FetchPlan {
	url := fmt.Sprintf("https://maven.neoforged.net/releases/net/neoforged/neoforge/%s/neoforge-%s-installer.jar", version, version)
	return FetchPlan{
		Kind: PlanInstallerRun,
		URL:  url,
		Argv: []string{"java", "-jar", "installer.jar", "--installServer"},
	}
}

// NeoForgeGameVersion derives the Minecraft game version a NeoForge
// version targets: "1.{major}" when major>=21 and minor==0, else
// "1.{major}.{minor}".
func NeoForgeGameVersion(neoForgeVersion string) (string, error) {
	parts := strings.SplitN(neoForgeVersion, ".", 3)
	if len(parts) < 2 {
		return "", apierr.New(apierr.InvalidRequest, "malformed NeoForge version", map[string]any{"version": neoForgeVersion})
	}
	var major, minor int
	if _, err := fmt.Sscanf(parts[0], "%d", &major); err != nil {
		return "", apierr.New(apierr.InvalidRequest, "malformed NeoForge version", map[string]any{"version": neoForgeVersion})
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &minor); err != nil {
		return "", apierr.New(apierr.InvalidRequest, "malformed NeoForge version", map[string]any{"version": neoForgeVersion})
	}
	if major >= 21 && minor == 0 {
		return fmt.Sprintf("1.%d", major), nil
	}
	return fmt.Sprintf("1.%d.%d", major, minor), nil
}
