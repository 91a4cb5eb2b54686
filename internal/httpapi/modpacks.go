package httpapi

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/archiveutil"
	"github.com/forgehost/panel/internal/catalog"
	"github.com/forgehost/panel/internal/model"
	"github.com/forgehost/panel/internal/provisioning"
)

func (a *API) searchModpacks(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	result, err := a.eng.Catalog.Search(c.Request.Context(), c.Query("query"), c.Query("gameVersion"), page)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) listModpacks(c *gin.Context) {
	var recs []model.ModpackRecord
	if err := a.eng.DB.Order("updated_at desc").Find(&recs).Error; err != nil {
		renderError(c, apierr.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (a *API) getModpack(c *gin.Context) {
	meta, err := a.eng.Catalog.ModpackMeta(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (a *API) getModpackDescription(c *gin.Context) {
	meta, err := a.eng.Catalog.ModpackMeta(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"description": meta.Extra["description"]})
}

func (a *API) getModpackFiles(c *gin.Context) {
	files, err := a.eng.Catalog.ModpackFiles(c.Request.Context(), c.Param("id"), c.Query("gameVersion"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

func (a *API) getModpackChangelog(c *gin.Context) {
	detail, err := a.eng.Catalog.FileDetail(c.Request.Context(), c.Param("id"), c.Param("fileId"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changelog": detail.Extra["changelog"]})
}

func (a *API) getModpackMods(c *gin.Context) {
	files, err := a.eng.Catalog.ModpackFiles(c.Request.Context(), c.Param("id"), "")
	if err != nil {
		renderError(c, err)
		return
	}
	if len(files) == 0 {
		c.JSON(http.StatusOK, []any{})
		return
	}
	a.renderModsForFile(c, c.Param("id"), files[0].FileID)
}

func (a *API) getModpackModsForFile(c *gin.Context) {
	a.renderModsForFile(c, c.Param("id"), c.Param("fileId"))
}

// renderModsForFile resolves the joined {manifest file, catalog metadata}
// mod list for one modpack file, downloading and parsing the archive's
// manifest.json only on a cache miss.
func (a *API) renderModsForFile(c *gin.Context, modpackID, fileID string) {
	mods, err := a.eng.Catalog.GetEnrichedModList(c.Request.Context(), modpackID, fileID, func(ctx context.Context) ([]catalog.EnrichedModEntry, error) {
		return a.resolveModList(ctx, modpackID, fileID)
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, mods)
}

func (a *API) resolveModList(ctx context.Context, modpackID, fileID string) ([]catalog.EnrichedModEntry, error) {
	detail, err := a.eng.Catalog.FileDetail(ctx, modpackID, fileID)
	if err != nil {
		return nil, err
	}
	archiveBytes, err := a.eng.Catalog.Download(ctx, detail.DownloadURL)
	if err != nil {
		return nil, err
	}

	tempDir, err := os.MkdirTemp("", "forgehost-modlist-*")
	if err != nil {
		return nil, apierr.Wrap(err)
	}
	defer os.RemoveAll(tempDir)

	archivePath := filepath.Join(tempDir, "pack.zip")
	if err := os.WriteFile(archivePath, archiveBytes, 0o644); err != nil {
		return nil, apierr.Wrap(err)
	}
	extractDir := filepath.Join(tempDir, "extracted")
	if err := archiveutil.Extract(ctx, archivePath, extractDir); err != nil {
		return nil, apierr.New(apierr.ManifestInvalid, "could not extract modpack archive", nil)
	}

	manifestData, err := os.ReadFile(filepath.Join(extractDir, "manifest.json"))
	if err != nil {
		return nil, apierr.New(apierr.ManifestMissing, "modpack archive has no manifest.json", nil)
	}
	refs, err := provisioning.ParseManifestMods(manifestData)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return []catalog.EnrichedModEntry{}, nil
	}

	ids := make([]int64, len(refs))
	for i, r := range refs {
		ids[i] = r.ProjectID
	}
	metaByID := make(map[int64]catalog.ModMetadata, len(ids))
	batch, err := a.eng.Catalog.ModMetadataBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range batch {
		metaByID[m.ProjectID] = m
	}

	entries := make([]catalog.EnrichedModEntry, len(refs))
	for i, r := range refs {
		meta := metaByID[r.ProjectID]
		entries[i] = catalog.EnrichedModEntry{
			ProjectID:  r.ProjectID,
			FileID:     r.FileID,
			Required:   r.Required,
			Name:       meta.Name,
			Slug:       meta.Slug,
			Summary:    meta.Summary,
			Logo:       meta.Logo,
			WebsiteURL: meta.WebsiteURL,
		}
	}
	return entries, nil
}

type createServerFromModpackRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	ModpackID   string `json:"modpackId" binding:"required"`
	FileID      string `json:"fileId" binding:"required"`
	Port        int    `json:"port"`
	MemoryMB    int    `json:"memory"`
	JVMOpts     string `json:"jvmOpts"`
	StoragePath string `json:"storagePath"`
}

func (a *API) createServerFromModpack(c *gin.Context) {
	var req createServerFromModpackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.New(apierr.InvalidRequest, err.Error(), nil))
		return
	}

	sessionID := a.eng.Orchestrator.Start(provisioning.Request{
		DisplayName:   req.Name,
		Description:   req.Description,
		ModpackID:     req.ModpackID,
		FileID:        req.FileID,
		RequestedPort: req.Port,
		MemoryMB:      req.MemoryMB,
		JVMOpts:       req.JVMOpts,
		StoragePath:   req.StoragePath,
	})

	c.JSON(http.StatusAccepted, gin.H{"sessionId": sessionID})
}
