package routes

import (
	"usage-applet/internal/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterStreamRoutes registers the websocket snapshot stream.
// Tokens are issued from the command line only (-print-token).
func RegisterStreamRoutes(r gin.IRouter, stream *controllers.StreamController) {
	r.GET("/ws", stream.HandleWebSocket)
}
