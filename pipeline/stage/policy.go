// Package stage runs one stage attempt for one record under a timeout and
// classifies the outcome. It never sleeps and never mutates records; it
// reports what happened and the backoff delay, and the state machine does
// the writing.
package stage

import (
	"math"
	"time"

	"github.com/teranos/pursuit/am"
)

// Policy bounds one stage's attempts. Values come from the [stages.<name>]
// config section with built-in defaults.
type Policy struct {
	MaxAttempts       int
	BaseBackoff       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	Timeout           time.Duration
}

// FromConfig converts a config stage section into a policy.
func FromConfig(cfg am.StageConfig) Policy {
	return Policy{
		MaxAttempts:       cfg.MaxAttempts,
		BaseBackoff:       time.Duration(cfg.BaseBackoffSeconds) * time.Second,
		BackoffMultiplier: cfg.BackoffMultiplier,
		MaxBackoff:        time.Duration(cfg.MaxBackoffSeconds) * time.Second,
		Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// Backoff returns the delay before the retry after attempt n (1-based):
// min(BaseBackoff × BackoffMultiplier^(n-1), MaxBackoff).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Exhausted reports whether attempt n (1-based) was the last one allowed.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
