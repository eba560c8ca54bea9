package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebsocket upgrades the request and keeps the connection registered
// until the peer disconnects. Inbound text frames are acknowledged back to
// the sender; broadcasts arrive through the hub.
func (h *httpHandler) handleWebsocket(c *gin.Context) {
	conn, err := websocketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := h.registry.Register(conn)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
	}
	h.logger.Info("websocket connected", zap.Int64("connection_id", int64(id)))

	defer func() {
		h.registry.Unregister(id)
		_ = conn.Close()
		if h.metrics != nil {
			h.metrics.ActiveConnections.Dec()
		}
		h.logger.Info("websocket disconnected", zap.Int64("connection_id", int64(id)))
	}()

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.hub.SendDirect(id, "Server received: "+string(payload))
	}
}
