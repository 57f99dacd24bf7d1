package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"usage-applet/internal/models"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sc, err := cfg.SamplerConfig()
	if err != nil {
		t.Fatalf("SamplerConfig: %v", err)
	}
	if sc.RefreshInterval != time.Second {
		t.Errorf("interval = %v, want 1s", sc.RefreshInterval)
	}
	if sc.Enabled != models.NewMetricSet(models.MetricCPU, models.MetricMemory) {
		t.Errorf("enabled = %v, want [cpu,memory]", sc.Enabled)
	}
	if cfg.HistoryLength != DefaultHistoryLength {
		t.Errorf("HistoryLength = %d, want %d", cfg.HistoryLength, DefaultHistoryLength)
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
refresh_interval: 500ms
history_length: 120
metrics: [cpu, mem, swap]
degraded_after: 5
server:
  addr: 127.0.0.1:9999
  allowed_origins: ["http://localhost:3000"]
auth:
  token_expiry: 24h
log:
  level: debug
  development: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sc, _ := cfg.SamplerConfig()
	if sc.RefreshInterval != 500*time.Millisecond {
		t.Errorf("interval = %v, want 500ms", sc.RefreshInterval)
	}
	if sc.Enabled != models.NewMetricSet(models.MetricCPU, models.MetricMemory, models.MetricSwap) {
		t.Errorf("enabled = %v", sc.Enabled)
	}
	if cfg.HistoryLength != 120 || cfg.DegradedAfter != 5 {
		t.Errorf("history=%d degraded_after=%d", cfg.HistoryLength, cfg.DegradedAfter)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" || len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if d, _ := cfg.TokenExpiry(); d != 24*time.Hour {
		t.Errorf("TokenExpiry = %v, want 24h", d)
	}
	if !cfg.Log.Development || cfg.Log.Level != "debug" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "zero interval", content: "refresh_interval: 0s"},
		{name: "negative interval", content: "refresh_interval: -2s"},
		{name: "interval below floor", content: "refresh_interval: 1ms"},
		{name: "unparseable interval", content: "refresh_interval: often"},
		{name: "unknown metric", content: "metrics: [cpu, gpu]"},
		{name: "negative history", content: "history_length: -1"},
		{name: "bad token expiry", content: "auth:\n  token_expiry: forever"},
		{name: "malformed yaml", content: "metrics: [cpu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Parse([]byte(tt.content), DefaultConfig())
			if !errors.Is(err, models.ErrInvalidConfig) {
				t.Errorf("Parse() err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestParseEmptyMetricsAllowed(t *testing.T) {
	cfg := DefaultConfig()
	if err := Parse([]byte("metrics: []"), cfg); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sc, _ := cfg.SamplerConfig()
	if sc.Enabled != 0 {
		t.Errorf("enabled = %v, want empty", sc.Enabled)
	}
}
