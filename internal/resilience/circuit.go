// Package resilience provides retry and circuit breaker helpers for calls to
// the remote gauge services.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

// Breaker states.
const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls a CircuitBreaker.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs.
	Name string
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Default 5.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before one probe call
	// is let through. Default 30s.
	ResetTimeout time.Duration
	Clock        clockwork.Clock
}

// FromCircuitConfig builds a config from the values in the config file.
// Non-positive values keep the defaults.
func FromCircuitConfig(name string, failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := CircuitBreakerConfig{Name: name, FailureThreshold: failureThreshold}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}

// CircuitBreaker stops calling a service after repeated failures. A
// cancelled caller context does not count as a failure.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	log *zap.Logger

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &CircuitBreaker{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "circuit"), zap.String("breaker", cfg.Name)),
	}
}

// ExecuteVal runs fn unless the breaker is open.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.acquire(); err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	cb.release(err)
	return v, err
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.expired() {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) expired() bool {
	return cb.cfg.Clock.Since(cb.openedAt) >= cb.cfg.ResetTimeout
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return nil
	}
	if !cb.expired() {
		return ErrCircuitOpen
	}
	cb.set(CircuitHalfOpen)
	return nil
}

func (cb *CircuitBreaker) release(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		if cb.state == CircuitHalfOpen {
			cb.set(CircuitClosed)
		}
		return
	}
	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.cfg.Clock.Now()
		if cb.state != CircuitOpen {
			cb.set(CircuitOpen)
		}
	}
}

func (cb *CircuitBreaker) set(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.log.Info("circuit state changed",
		zap.Stringer("from", from), zap.Stringer("to", to), zap.Int("failures", cb.failures))
}
