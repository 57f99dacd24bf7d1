package controllers

import (
	"errors"
	"net/http"

	"usage-applet/internal/models"
	"usage-applet/internal/services"

	"github.com/gin-gonic/gin"
)

// ConfigController lets the shell read and push sampler settings
type ConfigController struct {
	store *services.ConfigStore
}

func NewConfigController(store *services.ConfigStore) *ConfigController {
	return &ConfigController{store: store}
}

// GetConfig returns the effective sampler config
func (cc *ConfigController) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, cc.store.Current().View())
}

// configUpdate fields left out keep their current value
type configUpdate struct {
	RefreshInterval *string   `json:"refresh_interval"`
	Metrics         *[]string `json:"metrics"`
}

// PutConfig applies a config change. Invalid updates answer 400 and the
// previous config stays in effect.
func (cc *ConfigController) PutConfig(c *gin.Context) {
	var req configUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		cc.reject(c, err)
		return
	}

	view := cc.store.Current().View()
	if req.RefreshInterval != nil {
		view.RefreshInterval = *req.RefreshInterval
	}
	if req.Metrics != nil {
		view.Metrics = *req.Metrics
	}

	cfg, err := view.SamplerConfig()
	if err == nil {
		err = cc.store.Update(cfg)
	}
	if err != nil {
		cc.reject(c, err)
		return
	}

	c.JSON(http.StatusOK, cc.store.Current().View())
}

func (cc *ConfigController) reject(c *gin.Context, err error) {
	kind := "InvalidConfig"
	if !errors.Is(err, models.ErrInvalidConfig) {
		kind = "BadRequest"
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":  err.Error(),
		"kind":   kind,
		"config": cc.store.Current().View(),
	})
}
