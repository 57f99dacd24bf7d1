package models

import "time"

// RawCounterSample is one reading of the cumulative OS counters.
// CPU ticks only ever grow unless the counters were reset.
type RawCounterSample struct {
	Timestamp time.Time
	CPUBusy   uint64
	CPUTotal  uint64
	MemUsed   uint64
	MemTotal  uint64
	SwapUsed  uint64
	SwapTotal uint64
}

// UtilizationSample holds percentages derived from two consecutive raw samples
type UtilizationSample struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemPercent  float64   `json:"mem_percent"`
	SwapPercent float64   `json:"swap_percent"`
}

// Value returns the percentage recorded for metric m
func (u UtilizationSample) Value(m Metric) float64 {
	switch m {
	case MetricCPU:
		return u.CPUPercent
	case MetricMemory:
		return u.MemPercent
	case MetricSwap:
		return u.SwapPercent
	default:
		return 0
	}
}
