package jobs

import (
	"math"
	"time"

	"sportsync/internal/config"
)

// RetryPolicy defines exponential backoff parameters for operator retries.
type RetryPolicy struct {
	Enabled       bool
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func retryPolicyFromConfig(cfg config.BackoffConfig) RetryPolicy {
	return RetryPolicy{
		Enabled:       cfg.Enabled,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.Factor,
	}
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && (d > r.MaxDelay || delay > float64(math.MaxInt64)) {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// DelayFor is zero when backoff is disabled.
func (r RetryPolicy) DelayFor(retryCount int) time.Duration {
	if !r.Enabled {
		return 0
	}
	return r.NextDelay(retryCount)
}
