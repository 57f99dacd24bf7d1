package models

import "time"

// MetricView is the latest value and bounded history of one metric
type MetricView struct {
	Percent float64   `json:"percent"`
	History []float64 `json:"history"`
}

// Snapshot is the externally visible state of the sampler.
//
// A Snapshot is never modified after it has been published. Readers may keep
// a reference for as long as they like; the sampler replaces it with a new
// value instead of touching it. History slices are owned by the snapshot and
// must be treated as read-only.
type Snapshot struct {
	Timestamp           time.Time         `json:"timestamp"`
	Latest              UtilizationSample `json:"-"`
	CPU                 *MetricView       `json:"cpu,omitempty"`
	Mem                 *MetricView       `json:"mem,omitempty"`
	Swap                *MetricView       `json:"swap,omitempty"`
	Degraded            bool              `json:"degraded"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
}

// View returns the view for metric m, or nil when it is not tracked
func (s *Snapshot) View(m Metric) *MetricView {
	if s == nil {
		return nil
	}
	switch m {
	case MetricCPU:
		return s.CPU
	case MetricMemory:
		return s.Mem
	case MetricSwap:
		return s.Swap
	default:
		return nil
	}
}

// Degrade returns a copy of s flagged as stale after failures consecutive
// source errors. Metric views are shared since neither value is mutated.
func (s *Snapshot) Degrade(failures int) *Snapshot {
	out := &Snapshot{}
	if s != nil {
		*out = *s
	}
	out.Degraded = true
	out.ConsecutiveFailures = failures
	return out
}
