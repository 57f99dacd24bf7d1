package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"usage-applet/internal/models"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// ClockTicks is the USER_HZ resolution used to turn CPU seconds into ticks
const ClockTicks = 100

// MetricSource reads the raw OS counters
type MetricSource interface {
	// Poll returns the current cumulative counters. Failures wrap
	// models.ErrSourceUnavailable.
	Poll(ctx context.Context) (models.RawCounterSample, error)
}

// SystemSource reads counters through gopsutil
type SystemSource struct {
	logger *zap.Logger

	// Overridable for tests.
	cpuTimes      func(ctx context.Context, perCPU bool) ([]cpu.TimesStat, error)
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	swapMemory    func(ctx context.Context) (*mem.SwapMemoryStat, error)
	now           func() time.Time
}

// NewSystemSource creates a SystemSource. A nil logger discards output.
func NewSystemSource(logger *zap.Logger) *SystemSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemSource{
		logger:        logger,
		cpuTimes:      cpu.TimesWithContext,
		virtualMemory: mem.VirtualMemoryWithContext,
		swapMemory:    mem.SwapMemoryWithContext,
		now:           time.Now,
	}
}

// Poll implements MetricSource
func (s *SystemSource) Poll(ctx context.Context) (models.RawCounterSample, error) {
	sample := models.RawCounterSample{Timestamp: s.now()}

	times, err := s.cpuTimes(ctx, false)
	if err != nil {
		return sample, fmt.Errorf("%w: cpu times: %v", models.ErrSourceUnavailable, err)
	}
	if len(times) == 0 {
		return sample, fmt.Errorf("%w: cpu times: no aggregate entry", models.ErrSourceUnavailable)
	}
	sample.CPUBusy, sample.CPUTotal = cpuTicks(times[0])

	vm, err := s.virtualMemory(ctx)
	if err != nil {
		return sample, fmt.Errorf("%w: virtual memory: %v", models.ErrSourceUnavailable, err)
	}
	sample.MemTotal = vm.Total
	if vm.Available <= vm.Total {
		sample.MemUsed = vm.Total - vm.Available
	}

	// Hosts without swap, or platforms where it can't be read, report 0/0.
	sw, err := s.swapMemory(ctx)
	if err != nil {
		s.logger.Debug("swap unavailable", zap.Error(err))
	} else {
		sample.SwapUsed = sw.Used
		sample.SwapTotal = sw.Total
	}

	return sample, nil
}

// cpuTicks folds gopsutil's per-state seconds into busy and total ticks.
// Guest time is already counted in user on Linux.
func cpuTicks(t cpu.TimesStat) (busy, total uint64) {
	busySec := t.User + t.Nice + t.System + t.Irq + t.Softirq + t.Steal
	idleSec := t.Idle + t.Iowait
	busy = secondsToTicks(busySec)
	total = busy + secondsToTicks(idleSec)
	return busy, total
}

func secondsToTicks(sec float64) uint64 {
	if sec <= 0 || math.IsNaN(sec) {
		return 0
	}
	return uint64(math.Round(sec * ClockTicks))
}
