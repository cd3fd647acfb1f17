package handler

import (
	"net/http"
	"strings"
	"time"

	"floortrack/internal/realtime"
	"floortrack/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins, production should use stricter checks
	},
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// StreamHandler serves the realtime event stream over WebSocket
type StreamHandler struct {
	publisher *realtime.Publisher
}

// NewStreamHandler creates stream handler
func NewStreamHandler(publisher *realtime.Publisher) *StreamHandler {
	return &StreamHandler{publisher: publisher}
}

// Stream upgrades to WebSocket and forwards realtime events
// @Summary Realtime event stream
// @Description WebSocket stream of engine events; ?types=a,b narrows to the named event types
// @Tags dashboard
// @Param types query string false "Comma-separated event type filter"
// @Router /api/v1/stream [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	var types []string
	if raw := c.Query("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to upgrade to websocket: %v", err)
		return
	}

	sub := h.publisher.Subscribe(types...)
	logger.InfoCtx(c.Request.Context(), "stream subscriber attached, id: %s, types: %v", sub.ID(), types)

	// Reader goroutine: consume control frames, cancel on close/error.
	go func() {
		defer sub.Cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Cancel()
		ws.Close()
		logger.InfoCtx(c.Request.Context(), "stream subscriber detached, id: %s", sub.ID())
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(event); err != nil {
				logger.WarnCtx(c.Request.Context(), "stream write failed, id: %s: %v", sub.ID(), err)
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
