package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"usage-applet/internal/models"
	"usage-applet/internal/services"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// tickingSource advances the cpu counters by 100 ticks per poll, half busy.
type tickingSource struct {
	n atomic.Uint64
}

func (s *tickingSource) Poll(ctx context.Context) (models.RawCounterSample, error) {
	n := s.n.Add(1)
	return models.RawCounterSample{
		Timestamp: time.Now(),
		CPUBusy:   n * 50,
		CPUTotal:  n * 100,
		MemUsed:   250,
		MemTotal:  1000,
	}, nil
}

func samplerConfig(interval time.Duration, metrics ...models.Metric) models.SamplerConfig {
	return models.SamplerConfig{RefreshInterval: interval, Enabled: models.NewMetricSet(metrics...)}
}

func doRequest(t *testing.T, r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var out map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return out
}

func TestSnapshotController(t *testing.T) {
	pub := services.NewPublisher()
	sc := NewSnapshotController(pub)

	r := gin.New()
	r.GET("/snapshot", sc.GetSnapshot)
	r.GET("/snapshot/:metric", sc.GetMetric)

	if w := doRequest(t, r, http.MethodGet, "/snapshot", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("before first publish: status = %d, want 503", w.Code)
	}
	if w := doRequest(t, r, http.MethodGet, "/snapshot/cpu", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("metric before first publish: status = %d, want 503", w.Code)
	}

	pub.Publish(&models.Snapshot{
		Timestamp: time.Now(),
		CPU:       &models.MetricView{Percent: 50, History: []float64{40, 50}},
		Mem:       &models.MetricView{Percent: 25, History: []float64{25}},
	})

	w := doRequest(t, r, http.MethodGet, "/snapshot", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if _, ok := body["cpu"]; !ok {
		t.Errorf("cpu missing from %s", w.Body.String())
	}
	if _, ok := body["swap"]; ok {
		t.Errorf("disabled swap present in %s", w.Body.String())
	}

	tests := []struct {
		path    string
		code    int
		percent float64
	}{
		{path: "/snapshot/cpu", code: http.StatusOK, percent: 50},
		{path: "/snapshot/mem", code: http.StatusOK, percent: 25},
		{path: "/snapshot/memory", code: http.StatusOK, percent: 25},
		{path: "/snapshot/swap", code: http.StatusNotFound},
		{path: "/snapshot/gpu", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := doRequest(t, r, http.MethodGet, tt.path, nil)
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.code, w.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			var got struct {
				Percent float64   `json:"percent"`
				History []float64 `json:"history"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got.Percent != tt.percent {
				t.Errorf("percent = %v, want %v", got.Percent, tt.percent)
			}
			if len(got.History) == 0 || got.History[len(got.History)-1] != tt.percent {
				t.Errorf("history %v does not end with the latest value", got.History)
			}
		})
	}
}

func TestConfigController(t *testing.T) {
	store, err := services.NewConfigStore(samplerConfig(time.Second, models.MetricCPU, models.MetricMemory), nil)
	if err != nil {
		t.Fatal(err)
	}
	cc := NewConfigController(store)

	r := gin.New()
	r.GET("/config", cc.GetConfig)
	r.PUT("/config", cc.PutConfig)

	w := doRequest(t, r, http.MethodGet, "/config", nil)
	var view models.SamplerConfigView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.RefreshInterval != "1s" || strings.Join(view.Metrics, ",") != "cpu,memory" {
		t.Errorf("GET /config = %+v", view)
	}

	tests := []struct {
		name     string
		body     string
		code     int
		kind     string
		interval time.Duration
		enabled  models.MetricSet
	}{
		{
			name:     "interval only",
			body:     `{"refresh_interval":"250ms"}`,
			code:     http.StatusOK,
			interval: 250 * time.Millisecond,
			enabled:  models.NewMetricSet(models.MetricCPU, models.MetricMemory),
		},
		{
			name:     "metrics only",
			body:     `{"metrics":["cpu","swap"]}`,
			code:     http.StatusOK,
			interval: 250 * time.Millisecond,
			enabled:  models.NewMetricSet(models.MetricCPU, models.MetricSwap),
		},
		{
			name:     "zero interval rejected",
			body:     `{"refresh_interval":"0s"}`,
			code:     http.StatusBadRequest,
			kind:     "InvalidConfig",
			interval: 250 * time.Millisecond,
			enabled:  models.NewMetricSet(models.MetricCPU, models.MetricSwap),
		},
		{
			name:     "unknown metric rejected",
			body:     `{"metrics":["gpu"]}`,
			code:     http.StatusBadRequest,
			kind:     "InvalidConfig",
			interval: 250 * time.Millisecond,
			enabled:  models.NewMetricSet(models.MetricCPU, models.MetricSwap),
		},
		{
			name:     "malformed body",
			body:     `{"refresh_interval":`,
			code:     http.StatusBadRequest,
			kind:     "BadRequest",
			interval: 250 * time.Millisecond,
			enabled:  models.NewMetricSet(models.MetricCPU, models.MetricSwap),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, r, http.MethodPut, "/config", []byte(tt.body))
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.code, w.Body.String())
			}
			if tt.kind != "" {
				var kind string
				if err := json.Unmarshal(decodeBody(t, w)["kind"], &kind); err != nil || kind != tt.kind {
					t.Errorf("kind = %q, want %q", kind, tt.kind)
				}
			}

			cur := store.Current()
			if cur.RefreshInterval != tt.interval || cur.Enabled != tt.enabled {
				t.Errorf("store = %v %v, want %v %v", cur.RefreshInterval, cur.Enabled, tt.interval, tt.enabled)
			}
		})
	}
}

func TestHealthController(t *testing.T) {
	store, err := services.NewConfigStore(samplerConfig(models.MinRefreshInterval, models.MetricCPU), nil)
	if err != nil {
		t.Fatal(err)
	}
	pub := services.NewPublisher()
	sampler := services.NewSampler(&tickingSource{}, store, pub, services.SamplerOptions{HistoryLength: 5}, nil)
	hub := services.NewWebSocketHub(pub, nil)
	hc := NewHealthController(sampler, hub)

	r := gin.New()
	r.GET("/health", hc.GetHealth)

	status := func() string {
		var body struct {
			Status string `json:"status"`
		}
		w := doRequest(t, r, http.MethodGet, "/health", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status code = %d, want 200", w.Code)
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		return body.Status
	}

	if got := status(); got != "stopped" {
		t.Errorf("before Run: status = %q, want stopped", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sampler.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for pub.Current() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pub.Current() == nil {
		t.Fatal("sampler never published")
	}
	if got := status(); got != "ok" {
		t.Errorf("while running: status = %q, want ok", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}
