package routes

import (
	"usage-applet/internal/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterConfigRoutes(r gin.IRouter, cfg *controllers.ConfigController) {
	r.GET("/config", cfg.GetConfig)
	r.PUT("/config", cfg.PutConfig)
}
