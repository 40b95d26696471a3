package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOrDefault parses value, or fallback when value is blank. Zero and
// negative durations are rejected; every duration in this config bounds a
// wait or a window.
func DurationOrDefault(value string, fallback string) (time.Duration, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		candidate = strings.TrimSpace(fallback)
	}
	if candidate == "" {
		return 0, fmt.Errorf("duration value is empty")
	}

	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", candidate)
	}
	return d, nil
}
