package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"usage-applet/internal/models"

	"go.uber.org/zap"
)

// SamplerState is the phase of the current sampling cycle
type SamplerState int32

const (
	StateIdle SamplerState = iota
	StatePolling
	StateComputing
	StatePublishing
)

func (s SamplerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateComputing:
		return "computing"
	case StatePublishing:
		return "publishing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	errNoBaseline   = errors.New("no baseline sample yet")
	errZeroInterval = errors.New("cpu counters did not advance")
)

// SamplerOptions are fixed at construction
type SamplerOptions struct {
	// HistoryLength is the capacity of each metric's history buffer.
	HistoryLength int
	// DegradedAfter is the number of consecutive poll failures after which
	// the published snapshot is flagged as degraded.
	DegradedAfter int
}

// SamplerStats is a point-in-time view of the sampler counters
type SamplerStats struct {
	State               string `json:"state"`
	Running             bool   `json:"running"`
	Cycles              uint64 `json:"cycles"`
	Published           uint64 `json:"published"`
	Skipped             uint64 `json:"skipped"`
	Failures            uint64 `json:"failures"`
	ConsecutiveFailures int64  `json:"consecutive_failures"`
}

// Sampler polls a MetricSource on the configured cadence, derives utilization
// from counter deltas, keeps per-metric history and publishes snapshots.
type Sampler struct {
	logger    *zap.Logger
	source    MetricSource
	store     *ConfigStore
	publisher *Publisher
	opts      SamplerOptions

	// Owned by the Run goroutine.
	baseline    models.RawCounterSample
	hasBaseline bool
	enabled     models.MetricSet
	history     map[models.Metric]*HistoryBuffer[float64]

	state       atomic.Int32
	running     atomic.Bool
	cycles      atomic.Uint64
	published   atomic.Uint64
	skipped     atomic.Uint64
	failures    atomic.Uint64
	consecutive atomic.Int64
}

// NewSampler wires a sampler. A nil logger discards output.
func NewSampler(source MetricSource, store *ConfigStore, publisher *Publisher, opts SamplerOptions, logger *zap.Logger) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HistoryLength < 1 {
		opts.HistoryLength = 60
	}
	if opts.DegradedAfter < 1 {
		opts.DegradedAfter = 3
	}

	s := &Sampler{
		logger:    logger,
		source:    source,
		store:     store,
		publisher: publisher,
		opts:      opts,
		history:   make(map[models.Metric]*HistoryBuffer[float64], len(models.AllMetrics)),
	}
	for _, m := range models.AllMetrics {
		s.history[m] = NewHistoryBuffer[float64](opts.HistoryLength)
	}
	return s
}

// Run samples until ctx is cancelled. The first poll happens immediately and
// only establishes a baseline. A poll already in flight is allowed to finish,
// but no cycle starts once cancellation has been observed.
func (s *Sampler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("sampler already running")
	}
	defer s.running.Store(false)

	s.restart()
	s.logger.Info("sampler started",
		zap.Duration("interval", s.store.Current().RefreshInterval),
		zap.Int("history_length", s.opts.HistoryLength),
	)
	defer s.logger.Info("sampler stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	// armed is when the pending wait started; zero until the first cycle.
	var armed time.Time
	interval := s.store.Current().RefreshInterval

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.store.Changed():
			next := s.store.Current().RefreshInterval
			if next == interval {
				continue
			}
			interval = next
			if armed.IsZero() {
				continue
			}
			// The new interval is measured from when the pending wait started,
			// not from now.
			timer.Reset(max(0, time.Until(armed.Add(interval))))

		case <-timer.C:
			if ctx.Err() != nil {
				return nil
			}
			s.cycle(ctx)
			interval = s.store.Current().RefreshInterval
			armed = time.Now()
			timer.Reset(interval)
		}
	}
}

// State returns the current cycle phase
func (s *Sampler) State() SamplerState {
	return SamplerState(s.state.Load())
}

// Stats returns the sampler counters
func (s *Sampler) Stats() SamplerStats {
	return SamplerStats{
		State:               s.State().String(),
		Running:             s.running.Load(),
		Cycles:              s.cycles.Load(),
		Published:           s.published.Load(),
		Skipped:             s.skipped.Load(),
		Failures:            s.failures.Load(),
		ConsecutiveFailures: s.consecutive.Load(),
	}
}

// restart forgets the baseline and history so a new Run starts from scratch
func (s *Sampler) restart() {
	s.hasBaseline = false
	s.baseline = models.RawCounterSample{}
	s.enabled = s.store.Current().Enabled
	for _, buf := range s.history {
		buf.Reset()
	}
	s.consecutive.Store(0)
	s.setState(StateIdle)
}

// cycle runs one Polling → Computing → Publishing pass
func (s *Sampler) cycle(ctx context.Context) {
	defer s.setState(StateIdle)

	cfg := s.store.Current()
	s.applyEnabled(cfg.Enabled)
	s.cycles.Add(1)

	s.setState(StatePolling)
	// A poll already under way finishes even if Run is being cancelled.
	raw, err := s.source.Poll(context.WithoutCancel(ctx))
	if err != nil {
		s.pollFailed(err)
		return
	}
	if n := s.consecutive.Swap(0); n > 0 {
		s.logger.Info("metric source recovered", zap.Int64("failed_cycles", n))
	}

	s.setState(StateComputing)
	util, err := s.derive(raw)
	if err != nil {
		s.skipped.Add(1)
		s.logger.Debug("cycle skipped", zap.Error(err))
		return
	}

	for _, m := range models.AllMetrics {
		if cfg.Enabled.Has(m) {
			s.history[m].Append(util.Value(m))
		}
	}

	s.setState(StatePublishing)
	s.publisher.Publish(s.buildSnapshot(util, cfg.Enabled))
	s.published.Add(1)
}

// applyEnabled clears the history of metrics that were just disabled so a
// re-enabled sparkline doesn't join stale values
func (s *Sampler) applyEnabled(enabled models.MetricSet) {
	if enabled == s.enabled {
		return
	}
	for _, m := range models.AllMetrics {
		if s.enabled.Has(m) && !enabled.Has(m) {
			s.history[m].Reset()
		}
	}
	s.enabled = enabled
}

// derive turns raw into a utilization sample against the baseline and
// advances the baseline. A zero-length interval keeps the old baseline.
func (s *Sampler) derive(raw models.RawCounterSample) (models.UtilizationSample, error) {
	if !s.hasBaseline {
		s.baseline = raw
		s.hasBaseline = true
		return models.UtilizationSample{}, errNoBaseline
	}

	util, err := ComputeUtilization(s.baseline, raw)
	switch {
	case errors.Is(err, errZeroInterval):
		return util, err
	case errors.Is(err, models.ErrCounterReset):
		s.baseline = raw
		return util, err
	}
	s.baseline = raw
	return util, nil
}

func (s *Sampler) pollFailed(err error) {
	if !errors.Is(err, models.ErrSourceUnavailable) {
		err = fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	s.failures.Add(1)
	n := s.consecutive.Add(1)

	s.logger.Warn("poll failed, retrying next tick", zap.Error(err), zap.Int64("consecutive", n))

	if n < int64(s.opts.DegradedAfter) {
		return
	}
	if n == int64(s.opts.DegradedAfter) {
		s.logger.Error("metric source degraded", zap.Int64("consecutive", n))
	}
	s.setState(StatePublishing)
	s.publisher.Publish(s.publisher.Current().Degrade(int(n)))
}

func (s *Sampler) buildSnapshot(util models.UtilizationSample, enabled models.MetricSet) *models.Snapshot {
	snap := &models.Snapshot{
		Timestamp: util.Timestamp,
		Latest:    util,
	}
	view := func(m models.Metric) *models.MetricView {
		if !enabled.Has(m) {
			return nil
		}
		return &models.MetricView{
			Percent: util.Value(m),
			History: s.history[m].Snapshot(),
		}
	}
	snap.CPU = view(models.MetricCPU)
	snap.Mem = view(models.MetricMemory)
	snap.Swap = view(models.MetricSwap)
	return snap
}

func (s *Sampler) setState(state SamplerState) {
	s.state.Store(int32(state))
}

// ComputeUtilization derives percentages from two consecutive raw samples.
// It returns models.ErrCounterReset when a CPU counter went backwards and
// an error when no CPU time elapsed; neither case yields a sample.
func ComputeUtilization(prev, cur models.RawCounterSample) (models.UtilizationSample, error) {
	if cur.CPUBusy < prev.CPUBusy || cur.CPUTotal < prev.CPUTotal {
		return models.UtilizationSample{}, models.ErrCounterReset
	}
	totalDelta := cur.CPUTotal - prev.CPUTotal
	if totalDelta == 0 {
		return models.UtilizationSample{}, errZeroInterval
	}
	busyDelta := cur.CPUBusy - prev.CPUBusy

	return models.UtilizationSample{
		Timestamp:   cur.Timestamp,
		CPUPercent:  clampPercent(float64(busyDelta) / float64(totalDelta) * 100),
		MemPercent:  percentOf(cur.MemUsed, cur.MemTotal),
		SwapPercent: percentOf(cur.SwapUsed, cur.SwapTotal),
	}, nil
}

func clampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func percentOf(value, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return clampPercent(float64(value) / float64(total) * 100)
}
