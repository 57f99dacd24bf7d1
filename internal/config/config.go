// Package config loads the applet's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"usage-applet/internal/models"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRefreshInterval = "1s"
	DefaultHistoryLength   = 60
	DefaultDegradedAfter   = 3
	DefaultAddr            = "127.0.0.1:8787"
	DefaultTokenExpiry     = "2160h"
)

// Config is the on-disk configuration owned by the panel shell
type Config struct {
	// RefreshInterval is a duration string between samples (e.g. "1s").
	RefreshInterval string `yaml:"refresh_interval"`
	// HistoryLength is the sparkline width in samples. Read once at startup.
	HistoryLength int `yaml:"history_length"`
	// Metrics lists the enabled metrics: cpu, memory, swap.
	Metrics []string `yaml:"metrics"`
	// DegradedAfter is the number of consecutive source failures before the
	// snapshot is flagged as degraded.
	DegradedAfter int `yaml:"degraded_after"`

	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds the loopback snapshot API settings
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedIPs     []string `yaml:"allowed_ips"`
}

// AuthConfig holds websocket token settings
type AuthConfig struct {
	// SecretKey signs websocket tokens. Empty means generate and persist one.
	SecretKey   string `yaml:"secret_key"`
	TokenExpiry string `yaml:"token_expiry"`
}

// LogConfig selects the zap logger flavour
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns a Config populated with defaults
func DefaultConfig() *Config {
	return &Config{
		RefreshInterval: DefaultRefreshInterval,
		HistoryLength:   DefaultHistoryLength,
		Metrics:         []string{"cpu", "memory"},
		DegradedAfter:   DefaultDegradedAfter,
		Server: ServerConfig{
			Addr: DefaultAddr,
		},
		Auth: AuthConfig{
			TokenExpiry: DefaultTokenExpiry,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/usage-applet/config.yaml
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "usage-applet", "config.yaml")
}

// Load reads path on top of the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data into cfg and validates the result
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: parsing config: %v", models.ErrInvalidConfig, err)
	}

	if cfg.HistoryLength == 0 {
		cfg.HistoryLength = DefaultHistoryLength
	}
	if cfg.DegradedAfter == 0 {
		cfg.DegradedAfter = DefaultDegradedAfter
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}
	if cfg.Auth.TokenExpiry == "" {
		cfg.Auth.TokenExpiry = DefaultTokenExpiry
	}

	return cfg.Validate()
}

// Validate checks every field that can be validated without side effects
func (c *Config) Validate() error {
	if _, err := c.SamplerConfig(); err != nil {
		return err
	}
	if c.HistoryLength < 1 {
		return fmt.Errorf("%w: history_length must be >= 1, got %d", models.ErrInvalidConfig, c.HistoryLength)
	}
	if c.DegradedAfter < 1 {
		return fmt.Errorf("%w: degraded_after must be >= 1, got %d", models.ErrInvalidConfig, c.DegradedAfter)
	}
	if _, err := c.TokenExpiry(); err != nil {
		return err
	}
	return nil
}

// SamplerConfig extracts the hot-reloadable part of the configuration
func (c *Config) SamplerConfig() (models.SamplerConfig, error) {
	return models.SamplerConfigView{
		RefreshInterval: c.RefreshInterval,
		Metrics:         c.Metrics,
	}.SamplerConfig()
}

// TokenExpiry parses Auth.TokenExpiry
func (c *Config) TokenExpiry() (time.Duration, error) {
	d, err := time.ParseDuration(c.Auth.TokenExpiry)
	if err != nil {
		return 0, fmt.Errorf("%w: token_expiry: %v", models.ErrInvalidConfig, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: token_expiry must be > 0", models.ErrInvalidConfig)
	}
	return d, nil
}
