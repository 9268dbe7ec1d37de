package main

import (
	"fmt"
	"time"
)

func parseWindow(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("window must be positive, got %s", d)
	}
	return d, nil
}
