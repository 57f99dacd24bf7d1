package models

import (
	"fmt"
	"time"
)

// MinRefreshInterval is the shortest accepted sampling cadence
const MinRefreshInterval = 100 * time.Millisecond

// SamplerConfig is the live configuration the sampler re-reads every cycle
type SamplerConfig struct {
	RefreshInterval time.Duration
	Enabled         MetricSet
}

// Validate reports an ErrInvalidConfig-wrapped error when c cannot drive the sampler
func (c SamplerConfig) Validate() error {
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("%w: refresh_interval must be > 0, got %s", ErrInvalidConfig, c.RefreshInterval)
	}
	if c.RefreshInterval < MinRefreshInterval {
		return fmt.Errorf("%w: refresh_interval must be at least %s, got %s", ErrInvalidConfig, MinRefreshInterval, c.RefreshInterval)
	}
	return nil
}

// SamplerConfigView is the JSON shape of SamplerConfig
type SamplerConfigView struct {
	RefreshInterval string   `json:"refresh_interval"`
	Metrics         []string `json:"metrics"`
}

// View converts c into its wire form
func (c SamplerConfig) View() SamplerConfigView {
	return SamplerConfigView{
		RefreshInterval: c.RefreshInterval.String(),
		Metrics:         c.Enabled.Names(),
	}
}

// SamplerConfig parses v. Parse failures wrap ErrInvalidConfig.
func (v SamplerConfigView) SamplerConfig() (SamplerConfig, error) {
	interval, err := time.ParseDuration(v.RefreshInterval)
	if err != nil {
		return SamplerConfig{}, fmt.Errorf("%w: refresh_interval: %v", ErrInvalidConfig, err)
	}
	enabled, err := ParseMetricSet(v.Metrics)
	if err != nil {
		return SamplerConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg := SamplerConfig{RefreshInterval: interval, Enabled: enabled}
	return cfg, cfg.Validate()
}
