package wsapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgehost/panel/internal/apierr"
	"github.com/forgehost/panel/internal/progress"
)

type provisioningFrame struct {
	Type     string `json:"type"`
	Step     string `json:"step,omitempty"`
	Percent  int    `json:"percent,omitempty"`
	Message  string `json:"message,omitempty"`
	Current  *int   `json:"current,omitempty"`
	Total    *int   `json:"total,omitempty"`
	ServerID string `json:"serverId,omitempty"`
}

// provisioning streams one session's progress/complete/error events until
// the session reaches a terminal state or the connection breaks.
func (a *API) provisioning(c *gin.Context) {
	sessionID := c.Param("sessionId")

	sub, err := a.eng.Progress.Subscribe(sessionID)
	if err != nil {
		ae := apierr.New(apierr.UnknownSession, "no such provisioning session", nil)
		c.JSON(http.StatusNotFound, ae)
		return
	}

	conn, upgradeErr := upgrader.Upgrade(c.Writer, c.Request, nil)
	if upgradeErr != nil {
		return
	}
	defer conn.Close()

	for ev := range sub.Recv() {
		f := provisioningFrame{
			Type:     string(ev.Kind),
			Step:     ev.Step,
			Percent:  ev.Percent,
			Message:  ev.Reason,
			Current:  ev.Current,
			Total:    ev.Total,
			ServerID: ev.ServerID,
		}
		if err := conn.WriteJSON(f); err != nil {
			return
		}
		if ev.Kind == progress.EventComplete || ev.Kind == progress.EventError {
			return
		}
	}
}
