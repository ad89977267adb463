package storage

import (
	"sync"
	"time"

	"github.com/sgl-project/cloudxfer/pkg/logging"
)

// CircuitState is the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// CircuitBreaker stops invoking a failing dependency for a cooldown period
// after repeated failures. Each logical dependency (one per backend) gets its
// own instance; state is never shared.
//
// Closed -> (failures >= threshold) -> Open -> (timeout elapsed) -> HalfOpen
// -> next call succeeds -> Closed, or next call fails -> Open again.
type CircuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	timeout     time.Duration
	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      logging.Interface

	now func() time.Time // test hook
}

// NewCircuitBreaker creates a breaker with the given failure threshold and
// open-state cooldown. Zero values fall back to the defaults (5 failures,
// 60s cooldown).
func NewCircuitBreaker(threshold int, timeout time.Duration, logger logging.Interface) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
		state:     CircuitClosed,
		logger:    logger,
		now:       time.Now,
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call executes fn under breaker protection. While the breaker is open and
// the cooldown has not elapsed, fn is not invoked and ErrCircuitOpen is
// returned immediately.
func (b *CircuitBreaker) Call(fn func() error) error {
	b.mu.Lock()
	if b.state == CircuitOpen {
		if b.now().Sub(b.lastFailure) > b.timeout {
			b.state = CircuitHalfOpen
		} else {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == CircuitHalfOpen {
			b.state = CircuitClosed
			b.failures = 0
		}
		return nil
	}

	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.threshold {
		b.state = CircuitOpen
		b.logger.WithField("failure_count", b.failures).
			WithField("threshold", b.threshold).
			Warn("Circuit breaker opened")
	}
	return err
}
