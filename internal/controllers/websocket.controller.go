package controllers

import (
	"net/http"
	"time"

	"usage-applet/internal/middleware"
	"usage-applet/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamController upgrades authenticated clients to the snapshot stream
type StreamController struct {
	logger    *zap.Logger
	hub       *services.WebSocketHub
	auth      *services.AuthService
	security  *middleware.SecurityLogger
	validator *middleware.InputValidator
	upgrader  websocket.Upgrader
}

// NewStreamController creates a StreamController. checkOrigin may be nil to
// accept any origin; the API only listens on loopback by default.
func NewStreamController(hub *services.WebSocketHub, auth *services.AuthService, security *middleware.SecurityLogger, checkOrigin func(r *http.Request) bool, logger *zap.Logger) *StreamController {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &StreamController{
		logger:    logger,
		hub:       hub,
		auth:      auth,
		security:  security,
		validator: middleware.NewInputValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// HandleWebSocket handles incoming stream connections (?token=...)
func (sc *StreamController) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		sc.security.LogFailedAuth(c.ClientIP(), "missing token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	if !sc.validator.ValidateToken(token) {
		sc.security.LogFailedAuth(c.ClientIP(), "malformed token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	claims, err := sc.auth.ValidateToken(token)
	if err != nil {
		sc.security.LogFailedAuth(c.ClientIP(), "invalid token: "+err.Error())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := sc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sc.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	sc.security.LogStreamConnected(c.ClientIP(), claims.Client)

	client := &services.ClientConnection{
		ID:   sc.hub.NewClientID(claims.Client),
		Conn: ws,
		Send: make(chan services.WebSocketMessage, 16),
	}
	if !sc.hub.Register(client) {
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		ws.Close()
		return
	}

	go sc.readPump(client)
	go sc.writePump(client)
}

// readPump reads client messages until the connection drops
func (sc *StreamController) readPump(client *services.ClientConnection) {
	defer func() {
		sc.hub.Unregister(client.ID)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(4096)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg services.WebSocketMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sc.logger.Debug("read error", zap.String("client", client.ID), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			sc.hub.SendTo(client.ID, services.WebSocketMessage{Type: "pong", Timestamp: time.Now()})

		case "auth":
			// Token refresh on a live connection
			if _, err := sc.auth.ValidateToken(msg.Token); err != nil {
				sc.security.LogFailedAuth(client.ID, "stream auth message: "+err.Error())
				sc.hub.SendTo(client.ID, services.WebSocketMessage{Type: "error", Timestamp: time.Now(), Error: "invalid token"})
				return
			}
			sc.hub.SendTo(client.ID, services.WebSocketMessage{Type: "auth_success", Timestamp: time.Now()})

		case "unsubscribe":
			return

		default:
			sc.logger.Debug("unknown message type", zap.String("client", client.ID), zap.String("type", msg.Type))
		}
	}
}

// writePump writes queued messages and keepalive pings until Send is closed
func (sc *StreamController) writePump(client *services.ClientConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(msg); err != nil {
				sc.logger.Debug("write error", zap.String("client", client.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
