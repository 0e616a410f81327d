// Package retry implements exponential backoff with jitter for operations
// against the exchange: buy submission, authorization, and reconnects all
// share this shape rather than hand-rolling their own sleep loops.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config parameterizes the backoff schedule: delay = min(InitialDelay *
// Multiplier^attempt, MaxDelay), plus a random jitter of 0 to JitterFactor
// times that delay (jitter only lengthens the delay).
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
	OnRetry      func(attempt int, err error, delay time.Duration)
}

// BuyConfig is the engine's buy-retry schedule: 5s doubling, capped at 60s,
// up to 5 attempts.
func BuyConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 5 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}
}

func (c *Config) validate() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
}

func (c *Config) delayFor(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		d += d * c.JitterFactor * rand.Float64()
	}
	return time.Duration(d)
}

// Do runs operation until it succeeds, ctx is cancelled, or cfg.MaxAttempts
// is exhausted, sleeping with backoff between attempts.
func Do(ctx context.Context, cfg Config, operation func(attempt int) error) error {
	cfg.validate()

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return lastErr
			}
			return ctx.Err()
		default:
		}

		err := operation(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		var r interface{ Retryable() bool }
		if errors.As(err, &r) && !r.Retryable() {
			return err
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.delayFor(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}
