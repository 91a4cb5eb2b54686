// Package httpapi implements the gin-based REST control plane: servers,
// files, modpacks, and backups under /api/v1, and health at /health. Every handler
// renders apierr.Error as {kind, message, context} on failure.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginsize "github.com/gin-contrib/size"
	"github.com/gin-gonic/gin"

	"github.com/forgehost/panel/internal/engine"
)

const maxUploadBytes = 200 << 20 // 200 MiB request-body ceiling

// API bundles the engine with the gin router built on top of it.
type API struct {
	eng *engine.Engine
}

// New returns an API wired to eng.
func New(eng *engine.Engine) *API {
	return &API{eng: eng}
}

// Router builds the full gin engine, middleware included.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(a.eng))
	r.Use(cors.Default())
	r.Use(a.eng.Auth.Middleware())

	r.GET("/health", a.health)

	v1 := r.Group("/api/v1")
	{
		servers := v1.Group("/servers")
		servers.GET("", a.listServers)
		servers.POST("", a.createServer)
		servers.GET("/:id", a.getServer)
		servers.PATCH("/:id", a.updateServer)
		servers.DELETE("/:id", a.deleteServer)
		servers.POST("/:id/start", a.startServer)
		servers.POST("/:id/stop", a.stopServer)
		servers.POST("/:id/restart", a.restartServer)
		servers.GET("/:id/logs", a.getServerLogs)
		servers.GET("/:id/versions", a.getVersions)

		files := servers.Group("/:id/files")
		files.Use(ginsize.RequestSizeLimiter(maxUploadBytes))
		files.GET("", a.listFiles)
		files.GET("/read", a.readFile)
		files.GET("/download", a.downloadFile)
		files.POST("/write", a.writeFile)
		files.POST("/upload", a.uploadFile)
		files.POST("/mkdir", a.mkdir)
		files.DELETE("", a.deleteFile)

		modpacks := v1.Group("/modpacks")
		modpacks.GET("/search", a.searchModpacks)
		modpacks.GET("", a.listModpacks)
		modpacks.GET("/:id", a.getModpack)
		modpacks.GET("/:id/description", a.getModpackDescription)
		modpacks.GET("/:id/files", a.getModpackFiles)
		modpacks.GET("/:id/files/:fileId/changelog", a.getModpackChangelog)
		modpacks.GET("/:id/mods", a.getModpackMods)
		modpacks.GET("/:id/files/:fileId/mods", a.getModpackModsForFile)
		modpacks.POST("/create-server", a.createServerFromModpack)

		backups := v1.Group("/backups")
		backups.GET("", a.listBackups)
		backups.POST("", a.createBackup)
		backups.GET("/:id", a.getBackup)
		backups.DELETE("/:id", a.deleteBackup)
		backups.POST("/:id/restore", a.restoreBackup)
	}

	return r
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "forgehost-panel",
	})
}
