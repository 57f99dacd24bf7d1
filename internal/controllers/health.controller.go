package controllers

import (
	"net/http"
	"time"

	"usage-applet/internal/services"

	"github.com/gin-gonic/gin"
)

// HealthController reports sampler liveness
type HealthController struct {
	sampler *services.Sampler
	hub     *services.WebSocketHub
	started time.Time
}

func NewHealthController(sampler *services.Sampler, hub *services.WebSocketHub) *HealthController {
	return &HealthController{sampler: sampler, hub: hub, started: time.Now()}
}

// GetHealth returns sampler stats, stream client count and uptime.
// A degraded source answers 200 with "status":"degraded"; the applet is
// still running and serving the last good snapshot.
func (hc *HealthController) GetHealth(c *gin.Context) {
	stats := hc.sampler.Stats()
	status := "ok"
	if !stats.Running {
		status = "stopped"
	} else if stats.ConsecutiveFailures > 0 {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"sampler":        stats,
		"stream_clients": hc.hub.ClientCount(),
		"uptime":         time.Since(hc.started).Round(time.Second).String(),
	})
}
