package resilience

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffConfig describes a capped exponential retry policy
type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Jitter is the randomization factor in [0,1); zero gives exact intervals
	Jitter     float64
	MaxRetries int
}

// DefaultBackoffConfig returns the push channel reconnect defaults
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		Jitter:          0.5,
		MaxRetries:      5,
	}
}

// NewBackOff builds a fresh policy. NextBackOff returns backoff.Stop once
// MaxRetries delays have been handed out.
func (c BackoffConfig) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	if c.Multiplier >= 1 {
		b.Multiplier = c.Multiplier
	}
	b.RandomizationFactor = c.Jitter
	// Retries are bounded by count, not by wall clock
	b.MaxElapsedTime = 0
	b.Reset()

	if c.MaxRetries < 0 {
		return b
	}
	return backoff.WithMaxRetries(b, uint64(c.MaxRetries))
}
