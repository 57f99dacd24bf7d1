package models

import (
	"fmt"
	"strings"
)

// Metric identifies one tracked utilization series
type Metric uint8

const (
	MetricCPU Metric = 1 << iota
	MetricMemory
	MetricSwap
)

// AllMetrics lists every metric the core knows how to sample, in display order
var AllMetrics = []Metric{MetricCPU, MetricMemory, MetricSwap}

func (m Metric) String() string {
	switch m {
	case MetricCPU:
		return "cpu"
	case MetricMemory:
		return "memory"
	case MetricSwap:
		return "swap"
	default:
		return fmt.Sprintf("metric(%d)", uint8(m))
	}
}

// ParseMetric resolves a metric name. "mem" and "ram" are accepted for memory.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cpu":
		return MetricCPU, nil
	case "memory", "mem", "ram":
		return MetricMemory, nil
	case "swap":
		return MetricSwap, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", name)
	}
}

// MetricSet is an immutable set of enabled metrics
type MetricSet uint8

// NewMetricSet builds a set from the given metrics
func NewMetricSet(metrics ...Metric) MetricSet {
	var s MetricSet
	for _, m := range metrics {
		s |= MetricSet(m)
	}
	return s
}

// ParseMetricSet builds a set from metric names. Duplicates are ignored.
func ParseMetricSet(names []string) (MetricSet, error) {
	var s MetricSet
	for _, name := range names {
		m, err := ParseMetric(name)
		if err != nil {
			return 0, err
		}
		s |= MetricSet(m)
	}
	return s, nil
}

func (s MetricSet) Has(m Metric) bool {
	return s&MetricSet(m) != 0
}

func (s MetricSet) With(m Metric) MetricSet {
	return s | MetricSet(m)
}

func (s MetricSet) Without(m Metric) MetricSet {
	return s &^ MetricSet(m)
}

// Names returns canonical metric names in display order
func (s MetricSet) Names() []string {
	names := make([]string, 0, len(AllMetrics))
	for _, m := range AllMetrics {
		if s.Has(m) {
			names = append(names, m.String())
		}
	}
	return names
}

func (s MetricSet) String() string {
	return "[" + strings.Join(s.Names(), ",") + "]"
}
