package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"talentchat/backend/internal/chat"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientFrame is the only message the browser sends: composer activity.
type clientFrame struct {
	Type        string `json:"type"`
	Interacting bool   `json:"interacting"`
}

// serveWebSocket streams the user's controller events until either side
// goes away.
func (a *API) serveWebSocket(c *gin.Context) {
	sess := sessionFrom(c)
	controller := controllerFrom(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.String("user_id", sess.UserID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, unsubscribe := a.registry.Events(ctx, sess.UserID)
	a.logger.Info("websocket connected", zap.String("user_id", sess.UserID))

	go a.writePump(conn, events, cancel)
	a.readPump(conn, controller, sess.UserID)

	cancel()
	unsubscribe()
	a.logger.Info("websocket disconnected", zap.String("user_id", sess.UserID))
}

func (a *API) readPump(conn *websocket.Conn, controller *chat.Controller, userID string) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				a.logger.Warn("error reading websocket frame", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			a.logger.Debug("ignoring malformed websocket frame", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if frame.Type == "interacting" {
			controller.SetUserInteracting(frame.Interacting)
		}
	}
}

// writePump owns every write to conn. A closed events channel means the
// stream fell behind or the session ended.
func (a *API) writePump(conn *websocket.Conn, events <-chan chat.Event, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		_ = conn.Close()
	}()

	for {
		select {
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
