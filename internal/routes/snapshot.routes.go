package routes

import (
	"usage-applet/internal/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterSnapshotRoutes(r gin.IRouter, snapshots *controllers.SnapshotController, health *controllers.HealthController) {
	r.GET("/health", health.GetHealth)

	snapshot := r.Group("/snapshot")
	{
		snapshot.GET("", snapshots.GetSnapshot)
		snapshot.GET("/:metric", snapshots.GetMetric)
	}
}
