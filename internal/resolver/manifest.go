package resolver

import (
	"encoding/json"

	"github.com/forgehost/panel/internal/apierr"
)

func parseLatestPaperBuild(data []byte) (int, error) {
	var doc struct {
		Builds []int `json:"builds"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || len(doc.Builds) == 0 {
		return 0, apierr.New(apierr.ManifestInvalid, "could not parse PaperMC builds response", nil)
	}
	return doc.Builds[len(doc.Builds)-1], nil
}

func findVanillaVersionDetailURL(manifestData []byte, version string) (string, error) {
	var doc struct {
		Versions []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"versions"`
	}
	if err := json.Unmarshal(manifestData, &doc); err != nil {
		return "", apierr.New(apierr.ManifestInvalid, "could not parse Mojang version manifest", nil)
	}
	for _, v := range doc.Versions {
		if v.ID == version {
			return v.URL, nil
		}
	}
	return "", apierr.New(apierr.NotFound, "unknown Vanilla version", map[string]any{"version": version})
}

func findVanillaServerDownloadURL(detailData []byte) (string, error) {
	var doc struct {
		Downloads struct {
			Server struct {
				URL string `json:"url"`
			} `json:"server"`
		} `json:"downloads"`
	}
	if err := json.Unmarshal(detailData, &doc); err != nil || doc.Downloads.Server.URL == "" {
		return "", apierr.New(apierr.ManifestInvalid, "version detail has no server download", nil)
	}
	return doc.Downloads.Server.URL, nil
}
