package models

import "errors"

var (
	// ErrSourceUnavailable means the OS counters could not be read this cycle
	ErrSourceUnavailable = errors.New("metric source unavailable")

	// ErrInvalidConfig marks a rejected configuration update
	ErrInvalidConfig = errors.New("invalid config")

	// ErrCounterReset means a cumulative counter went backwards
	ErrCounterReset = errors.New("counter reset")
)
