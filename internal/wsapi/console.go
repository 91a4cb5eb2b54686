// Package wsapi implements the two streaming channels over
// gorilla/websocket: Console (per server) and Provisioning (per session).
// Both speak JSON frames matching the shapes in the HTTP layer's REST
// payloads.
package wsapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/forgehost/panel/internal/engine"
	"github.com/forgehost/panel/internal/hub"
	"github.com/forgehost/panel/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// API bundles the engine with the WebSocket route handlers built on it.
type API struct {
	eng *engine.Engine
}

// New returns an API wired to eng.
func New(eng *engine.Engine) *API {
	return &API{eng: eng}
}

// RegisterRoutes attaches the streaming endpoints to r.
func (a *API) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/console/:serverId", a.console)
	r.GET("/ws/provisioning/:sessionId", a.provisioning)
}

type consoleInbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type consoleFrame struct {
	Type    string          `json:"type"`
	Logs    []model.LogLine `json:"logs,omitempty"`
	Text    string          `json:"text,omitempty"`
	State   model.State     `json:"state,omitempty"`
	Message string          `json:"message,omitempty"`
}

// console streams a server's log backlog, live log lines, and state
// transitions, and accepts a {"type":"command","text":...} inbound frame
// that injects a command on the server's stdin.
func (a *API) console(c *gin.Context) {
	serverID := c.Param("serverId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logSub := a.eng.Hub.SubscribeLogs(serverID)
	defer a.eng.Hub.UnsubscribeLogs(serverID, logSub)
	stateSub := a.eng.Hub.SubscribeState(serverID)
	defer a.eng.Hub.UnsubscribeState(serverID, stateSub)

	writeDone := make(chan struct{})
	go consoleWriteLoop(conn, logSub, stateSub, writeDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var in consoleInbound
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		if in.Type == "command" {
			if err := a.eng.Supervisor.SendCommand(serverID, in.Text); err != nil {
				_ = conn.WriteJSON(consoleFrame{Type: "error", Message: err.Error()})
			}
		}
	}
	<-writeDone
}

// consoleWriteLoop fans hub events to the client until either subscriber
// reports SlowConsumer or the connection breaks.
func consoleWriteLoop(conn *websocket.Conn, logSub *hub.Subscriber[hub.Event], stateSub *hub.Subscriber[hub.StateEvent], done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-logSub.Recv():
			if !ok {
				return
			}
			if ev.Backlog != nil {
				if err := conn.WriteJSON(consoleFrame{Type: "logs", Logs: ev.Backlog}); err != nil {
					return
				}
				continue
			}
			if ev.Line != nil {
				if err := conn.WriteJSON(consoleFrame{Type: "log", Text: ev.Line.Text}); err != nil {
					return
				}
			}
		case ev, ok := <-stateSub.Recv():
			if !ok {
				return
			}
			if err := conn.WriteJSON(consoleFrame{Type: "state", State: ev.State}); err != nil {
				return
			}
		case reason := <-logSub.Closed:
			_ = conn.WriteJSON(consoleFrame{Type: "error", Message: reason})
			return
		case reason := <-stateSub.Closed:
			_ = conn.WriteJSON(consoleFrame{Type: "error", Message: reason})
			return
		}
	}
}
