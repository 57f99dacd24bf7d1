package controllers

import (
	"net/http"

	"usage-applet/internal/models"
	"usage-applet/internal/services"

	"github.com/gin-gonic/gin"
)

// SnapshotController serves the latest published snapshot
type SnapshotController struct {
	publisher *services.Publisher
}

func NewSnapshotController(publisher *services.Publisher) *SnapshotController {
	return &SnapshotController{publisher: publisher}
}

// GetSnapshot returns the whole snapshot: cpu, mem and swap views
func (sc *SnapshotController) GetSnapshot(c *gin.Context) {
	snap := sc.publisher.Current()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no sample yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetMetric returns the view of a single metric
// Path params: metric=cpu|memory|mem|swap
func (sc *SnapshotController) GetMetric(c *gin.Context) {
	metric, err := models.ParseMetric(c.Param("metric"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap := sc.publisher.Current()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no sample yet"})
		return
	}

	view := snap.View(metric)
	if view == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "metric not enabled", "metric": metric.String()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metric":    metric.String(),
		"percent":   view.Percent,
		"history":   view.History,
		"timestamp": snap.Timestamp,
		"degraded":  snap.Degraded,
	})
}
