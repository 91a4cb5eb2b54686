package httpapi

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/configwriter"
	"github.com/forgehost/panel/internal/installer"
	"github.com/forgehost/panel/internal/model"
	"github.com/forgehost/panel/internal/supervisor"
)

type createServerRequest struct {
	Name        string             `json:"name" binding:"required"`
	Description string             `json:"description"`
	Engine      model.Engine       `json:"engine" binding:"required"`
	Version     string             `json:"version" binding:"required"`
	Port        int                `json:"port"`
	MemoryMB    int                `json:"memory"`
	JVMOpts     string             `json:"jvmOpts"`
	AutoStart   bool               `json:"autoStart"`
	StoragePath string             `json:"storagePath"`
	Options     *model.GameOptions `json:"options"`
}

func (a *API) listServers(c *gin.Context) {
	servers, err := a.eng.Registry.List()
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, servers)
}

func (a *API) serverID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		renderError(c, apierr.New(apierr.InvalidRequest, "invalid server id", nil))
		return uuid.Nil, false
	}
	return id, true
}

func (a *API) getServer(c *gin.Context) {
	id, ok := a.serverID(c)
	if !ok {
		return
	}
	rec, err := a.eng.Registry.Get(id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *API) createServer(c *gin.Context) {
	var req createServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.New(apierr.InvalidRequest, err.Error(), nil))
		return
	}

	port, err := a.eng.Registry.FindAvailablePort(req.Port)
	if err != nil {
		renderError(c, err)
		return
	}

	storagePath := req.StoragePath
	if storagePath == "" {
		storagePath = a.eng.Config.ServersBaseDir + "/" + req.Name
	}

	options := model.DefaultGameOptions()
	if req.Options != nil {
		options = *req.Options
	}

	rec := model.ServerRecord{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		EngineName:  req.Engine,
		Version:     req.Version,
		Port:        port,
		MemoryMB:    req.MemoryMB,
		JVMOpts:     req.JVMOpts,
		AutoStart:   req.AutoStart,
		State:       model.StateStopped,
		StorageKind: model.StorageBindPath,
		StoragePath: storagePath,
		Options:     options,
	}

	if err := ensureDir(storagePath); err != nil {
		renderError(c, err)
		return
	}
	if err := a.eng.Registry.Create(&rec); err != nil {
		renderError(c, err)
		return
	}
	if err := configwriter.Write(storagePath, rec); err != nil {
		renderError(c, err)
		return
	}

	a.eng.Log.Info("server created", zap.String("server_id", rec.ID.String()), zap.String("caller_id", callerID(c)))
	c.JSON(http.StatusCreated, rec)
}

type updateServerRequest struct {
	Description   *string            `json:"description"`
	MemoryMB      *int               `json:"memory"`
	JVMOpts       *string            `json:"jvmOpts"`
	AutoStart     *bool              `json:"autoStart"`
	BackupEnabled *bool              `json:"backupEnabled"`
	Options       *model.GameOptions `json:"options"`
}

func (a *API) updateServer(c *gin.Context) {
	id, ok := a.serverID(c)
	if !ok {
		return
	}
	rec, err := a.eng.Registry.Get(id)
	if err != nil {
		renderError(c, err)
		return
	}

	var req updateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.New(apierr.InvalidRequest, err.Error(), nil))
		return
	}
	if req.Description != nil {
		rec.Description = *req.Description
	}
	if req.MemoryMB != nil {
		rec.MemoryMB = *req.MemoryMB
	}
	if req.JVMOpts != nil {
		rec.JVMOpts = *req.JVMOpts
	}
	if req.AutoStart != nil {
		rec.AutoStart = *req.AutoStart
	}
	if req.BackupEnabled != nil {
		rec.BackupEnabled = *req.BackupEnabled
	}
	if req.Options != nil {
		rec.Options = *req.Options
	}

	if err := a.eng.Registry.Update(&rec); err != nil {
		renderError(c, err)
		return
	}
	if err := configwriter.Write(rec.StoragePath, rec); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *API) deleteServer(c *gin.Context) {
	id, ok := a.serverID(c)
	if !ok {
		return
	}
	if a.eng.Supervisor.IsRunning(id.String()) {
		if err := a.eng.Supervisor.ForceKill(id.String()); err != nil {
			renderError(c, err)
			return
		}
	}
	if err := a.eng.Registry.Delete(id); err != nil {
		renderError(c, err)
		return
	}
	a.eng.Log.Info("server deleted", zap.String("server_id", id.String()), zap.String("caller_id", callerID(c)))
	c.Status(http.StatusNoContent)
}

func (a *API) startServer(c *gin.Context) {
	id, ok := a.serverID(c)
	if !ok {
		return
	}
	rec, err := a.eng.Registry.Get(id)
	if err != nil {
		renderError(c, err)
		return
	}
	if a.eng.Supervisor.IsRunning(id.String()) {
		renderError(c, apierr.New(apierr.AlreadyRunning, "server is already running", nil))
		return
	}

	argv, err := a.prepareLaunch(c.Request.Context(), id, rec)
	if err != nil {
		renderError(c, err)
		return
	}

	if err := a.eng.Supervisor.Start(id.String(), rec.StoragePath, argv); err != nil {
		renderError(c, err)
		return
	}

	rec.State = model.StateStarting
	c.JSON(http.StatusAccepted, rec)
}

// prepareLaunch installs the resolved engine artifact and, for script-kind
// descriptors (Forge/NeoForge), writes user_jvm_args.txt so the launch
// script picks up the server's configured heap size, before building argv.
func (a *API) prepareLaunch(ctx context.Context, id uuid.UUID, rec model.ServerRecord) ([]string, error) {
	desc, err := a.eng.Installer.Install(ctx, rec.StoragePath, rec.EngineName, rec.Version)
	if err != nil {
		_ = a.eng.Registry.SetState(id, model.StateError)
		return nil, err
	}

	if desc.Kind == installer.DescriptorScript {
		if err := configwriter.WriteMemoryArgs(rec.StoragePath, rec.MemoryMB, rec.JVMOpts); err != nil {
			_ = a.eng.Registry.SetState(id, model.StateError)
			return nil, err
		}
	}

	return supervisor.BuildArgv(desc, rec.MemoryMB, rec.JVMOpts), nil
}

func (a *API) stopServer(c *gin.Context) {
	id, ok := a.serverID(c)
	if !ok {
		return
	}
	if !a.eng.Supervisor.IsRunning(id.String()) {
		renderError(c, apierr.New(apierr.AlreadyStopped, "server is already stopped", nil))
		return
	}
	if err := a.eng.Supervisor.Stop(id.String()); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (a *API) restartServer(c *gin.Context) {
	id, ok := a.serverID(c)
	if !ok {
		return
	}
	if a.eng.Supervisor.IsRunning(id.String()) {
		if err := a.eng.Supervisor.Stop(id.String()); err != nil {
			renderError(c, err)
			return
		}
	}

	rec, err := a.eng.Registry.Get(id)
	if err != nil {
		renderError(c, err)
		return
	}
	argv, err := a.prepareLaunch(c.Request.Context(), id, rec)
	if err != nil {
		renderError(c, err)
		return
	}
	if err := a.eng.Supervisor.Start(id.String(), rec.StoragePath, argv); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (a *API) getServerLogs(c *gin.Context) {
	id, ok := a.serverID(c)
	if !ok {
		return
	}
	sub := a.eng.Hub.SubscribeLogs(id.String())
	defer a.eng.Hub.UnsubscribeLogs(id.String(), sub)

	ev := <-sub.Recv()
	c.JSON(http.StatusOK, gin.H{"logs": ev.Backlog})
}

func (a *API) getVersions(c *gin.Context) {
	engineName := model.Engine(c.Query("engine"))
	plan, err := a.eng.Resolver.Resolve(c.Request.Context(), engineName, c.Query("version"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return apierr.Wrap(err)
	}
	return nil
}
