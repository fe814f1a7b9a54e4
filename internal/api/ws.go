package api

import (
	"net/http"

	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DrawEvents streams join/finish events for open draws to the mini-app so
// participant counters update without polling.
func (r *drawRoutes) DrawEvents(c *gin.Context) {
	log := logger.Logger()

	if _, ok := telegramUser(c); !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	id, events := r.gs.Events().Subscribe()

	go func() {
		defer func() {
			r.gs.Events().Unsubscribe(id)
			conn.Close()
		}()

		for event := range events {
			out, err := json.Marshal(event)
			if err != nil {
				log.Error("failed to marshal draw event", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
	}()

	// Drain reads so close frames are processed; clients never send data.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				r.gs.Events().Unsubscribe(id)
				return
			}
		}
	}()
}
