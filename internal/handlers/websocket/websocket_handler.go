// internal/handlers/websocket/websocket_handler.go
package websocket

import (
	"net/http"

	"sokoni-service/internal/pkg/jwt"
	"sokoni-service/internal/pkg/response"
	ws "sokoni-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking for production
		// For now, allow all origins
		return true
	},
}

type WebSocketHandler struct {
	hub      *ws.Hub
	verifier *jwt.Verifier
	logger   *zap.Logger
}

func NewWebSocketHandler(hub *ws.Hub, verifier *jwt.Verifier, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		verifier: verifier,
		logger:   logger,
	}
}

// HandleConnection upgrades an authenticated request to a push channel for
// notification delivery. Browsers cannot set headers on websocket dials, so
// the token also rides a query parameter.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = c.GetHeader("Sec-WebSocket-Protocol")
	}
	if token == "" {
		response.Error(c, http.StatusUnauthorized, "missing authentication token", nil)
		return
	}

	claims, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Warn("websocket authentication failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		response.Error(c, http.StatusUnauthorized, "authentication failed", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		return
	}

	client := ws.NewClient(h.hub, conn, claims.IdentityID)
	h.hub.Register <- client

	h.logger.Info("websocket client connected",
		zap.Int64("identity_id", claims.IdentityID),
		zap.Int("total_clients", h.hub.TotalClients()),
	)

	go client.WritePump()
	go client.ReadPump()
}
