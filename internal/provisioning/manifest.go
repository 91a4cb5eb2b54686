package provisioning

import (
	"encoding/json"
	"strings"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/model"
)

// manifestFile mirrors the modpack manifest.json shape: Minecraft version,
// mod loader declarations, and the list of mod files to fetch.
type manifestFile struct {
	Minecraft struct {
		Version    string `json:"version"`
		ModLoaders []struct {
			ID      string `json:"id"`
			Primary bool   `json:"primary"`
		} `json:"modLoaders"`
	} `json:"minecraft"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Author    string `json:"author"`
	Overrides string `json:"overrides"`
	Files     []struct {
		ProjectID int64 `json:"projectID"`
		FileID    int64 `json:"fileID"`
		Required  bool  `json:"required"`
	} `json:"files"`
}

func parseManifest(data []byte) (manifestFile, error) {
	var m manifestFile
	if err := json.Unmarshal(data, &m); err != nil {
		return manifestFile{}, apierr.New(apierr.ManifestInvalid, "could not parse manifest.json", nil)
	}
	if m.Minecraft.Version == "" {
		return manifestFile{}, apierr.New(apierr.ManifestInvalid, "manifest.json is missing minecraft.version", nil)
	}
	return m, nil
}

// ManifestModRef is one mod entry named by a modpack manifest.
type ManifestModRef struct {
	ProjectID int64
	FileID    int64
	Required  bool
}

// ParseManifestMods extracts the mod file references from a manifest.json
// payload, for callers (the mod-list HTTP read) that only need the file
// list and not the full classification pipeline.
func ParseManifestMods(data []byte) ([]ManifestModRef, error) {
	m, err := parseManifest(data)
	if err != nil {
		return nil, err
	}
	refs := make([]ManifestModRef, 0, len(m.Files))
	for _, f := range m.Files {
		refs = append(refs, ManifestModRef{ProjectID: f.ProjectID, FileID: f.FileID, Required: f.Required})
	}
	return refs, nil
}

func (m manifestFile) primaryLoaderID() string {
	for _, l := range m.Minecraft.ModLoaders {
		if l.Primary {
			return l.ID
		}
	}
	if len(m.Minecraft.ModLoaders) > 0 {
		return m.Minecraft.ModLoaders[0].ID
	}
	return ""
}

// classify derives {engine, version} from the manifest's primary mod
// loader: forge-*/fabric-*/neoforge-* prefix match, else Vanilla.
func (m manifestFile) classify() (model.Engine, string) {
	loaderID := m.primaryLoaderID()
	mcVersion := m.Minecraft.Version

	switch {
	case strings.HasPrefix(loaderID, "forge-"):
		forgeVersion := strings.TrimPrefix(loaderID, "forge-")
		return model.EngineForge, mcVersion + "-" + forgeVersion
	case strings.HasPrefix(loaderID, "fabric-"):
		fabricVersion := strings.TrimPrefix(loaderID, "fabric-")
		if fabricVersion == "" {
			fabricVersion = "0.15.11"
		}
		return model.EngineFabric, fabricVersion
	case strings.HasPrefix(loaderID, "neoforge-"):
		neoForgeVersion := strings.TrimPrefix(loaderID, "neoforge-")
		return model.EngineNeoForge, neoForgeVersion
	default:
		return model.EngineVanilla, mcVersion
	}
}
