package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
)

// RetryConfig describes how a failed call is repeated.
type RetryConfig struct {
	// Attempts counts every call, the first one included. Zero means 1.
	Attempts int
	// Wait is the pause before the first retry.
	Wait time.Duration
	// Growth multiplies the pause after each retry. Values below 1 keep it
	// fixed.
	Growth float64
	// MaxWait caps the pause when non-zero.
	MaxWait time.Duration
	// Jitter moves each pause by up to this fraction in either direction.
	Jitter float64

	// Retryable picks the errors worth another call. Nil means IsTransient.
	Retryable func(err error) bool
	// OnRetry runs before each pause with the 1-based retry number.
	OnRetry func(retry int, err error)

	Clock clockwork.Clock
}

// FixedDelay retries up to retries times, pausing exactly wait before each
// retry, for errors accepted by retryable.
func FixedDelay(retries int, wait time.Duration, retryable func(error) bool) RetryConfig {
	return RetryConfig{Attempts: retries + 1, Wait: wait, Retryable: retryable}
}

// Backoff retries transient errors with a doubling, jittered pause.
func Backoff(attempts int, wait, maxWait time.Duration) RetryConfig {
	return RetryConfig{Attempts: attempts, Wait: wait, Growth: 2, MaxWait: maxWait, Jitter: 0.25}
}

// pause returns the wait before retry n (0-based).
func (c RetryConfig) pause(n int) time.Duration {
	d := float64(c.Wait)
	for i := 0; i < n && c.Growth > 1; i++ {
		d *= c.Growth
	}
	if c.MaxWait > 0 && d > float64(c.MaxWait) {
		d = float64(c.MaxWait)
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(d, 0))
}

// Do calls fn until it succeeds, returns an error that is not retryable,
// runs out of attempts or ctx ends.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that return a value. The last error is returned
// when every attempt fails.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(cfg.Attempts, 1)
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var zero T
	for n := 0; ; n++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if n+1 >= attempts || ctx.Err() != nil || !retryable(err) {
			return zero, err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(n+1, err)
		}
		select {
		case <-ctx.Done():
			return zero, err
		case <-clock.After(cfg.pause(n)):
		}
	}
}
