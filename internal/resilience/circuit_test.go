package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fail(context.Context) (int, error) { return 0, errors.New("down") }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := FromCircuitConfig("wrds", 2, 30)
	cfg.Clock = clock
	cb := NewCircuitBreaker(cfg)
	ctx := context.Background()

	_, _ = ExecuteVal(ctx, cb, fail)
	assert.Equal(t, CircuitClosed, cb.State())
	_, _ = ExecuteVal(ctx, cb, fail)
	assert.Equal(t, CircuitOpen, cb.State())

	var called bool
	_, err := ExecuteVal(ctx, cb, func(context.Context) (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "function must not run while open")
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute, Clock: clock})
	ctx := context.Background()

	_, _ = ExecuteVal(ctx, cb, fail)
	clock.Advance(time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	v, err := ExecuteVal(ctx, cb, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute, Clock: clock})
	ctx := context.Background()

	for range 3 {
		_, _ = ExecuteVal(ctx, cb, fail)
	}
	clock.Advance(time.Minute)
	_, _ = ExecuteVal(ctx, cb, fail)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	_, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
		return 0, context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
