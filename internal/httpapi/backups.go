package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/model"
)

func (a *API) listBackups(c *gin.Context) {
	serverID, err := uuid.Parse(c.Query("serverId"))
	if err != nil {
		renderError(c, apierr.New(apierr.InvalidRequest, "serverId query parameter is required", nil))
		return
	}
	backups, err := a.eng.Backup.List(serverID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, backups)
}

type createBackupRequest struct {
	ServerID string `json:"serverId" binding:"required"`
}

func (a *API) createBackup(c *gin.Context) {
	var req createBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.New(apierr.InvalidRequest, err.Error(), nil))
		return
	}
	serverID, err := uuid.Parse(req.ServerID)
	if err != nil {
		renderError(c, apierr.New(apierr.InvalidRequest, "invalid serverId", nil))
		return
	}

	sessionID, err := a.eng.Backup.Create(c.Request.Context(), serverID, model.BackupManual)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sessionId": sessionID})
}

func (a *API) backupID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		renderError(c, apierr.New(apierr.InvalidRequest, "invalid backup id", nil))
		return uuid.Nil, false
	}
	return id, true
}

func (a *API) getBackup(c *gin.Context) {
	id, ok := a.backupID(c)
	if !ok {
		return
	}
	rec, err := a.eng.Backup.Get(id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *API) deleteBackup(c *gin.Context) {
	id, ok := a.backupID(c)
	if !ok {
		return
	}
	if err := a.eng.Backup.Delete(id); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) restoreBackup(c *gin.Context) {
	id, ok := a.backupID(c)
	if !ok {
		return
	}
	if err := a.eng.Backup.Restore(c.Request.Context(), id); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
