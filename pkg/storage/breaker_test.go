package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgl-project/cloudxfer/pkg/logging"
)

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute, logging.NewNopLogger())
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		assert.Equal(t, boom, b.Call(func() error { return boom }))
	}
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute, logging.NewNopLogger())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = b.Call(func() error { return boom })
	}
	assert.Equal(t, CircuitOpen, b.State())

	calls := 0
	err := b.Call(func() error { calls++; return nil })
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Equal(t, 0, calls, "open breaker must not invoke the operation")
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewCircuitBreaker(1, time.Minute, logging.NewNopLogger())
	b.now = func() time.Time { return current }

	boom := errors.New("boom")
	require.Error(t, b.Call(func() error { return boom }))
	require.Equal(t, CircuitOpen, b.State())

	// Inside the cooldown the call is rejected.
	current = current.Add(30 * time.Second)
	assert.True(t, errors.Is(b.Call(func() error { return nil }), ErrCircuitOpen))

	// Past the cooldown one probe is let through; success closes the
	// breaker and resets the failure count.
	current = current.Add(31 * time.Second)
	calls := 0
	require.NoError(t, b.Call(func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewCircuitBreaker(1, time.Minute, logging.NewNopLogger())
	b.now = func() time.Time { return current }

	boom := errors.New("boom")
	require.Error(t, b.Call(func() error { return boom }))
	require.Equal(t, CircuitOpen, b.State())

	current = current.Add(2 * time.Minute)
	require.Error(t, b.Call(func() error { return boom }))
	assert.Equal(t, CircuitOpen, b.State())

	// And the fresh failure restarts the cooldown.
	current = current.Add(30 * time.Second)
	assert.True(t, errors.Is(b.Call(func() error { return nil }), ErrCircuitOpen))
}

func TestBreakerSuccessDoesNotResetClosedCount(t *testing.T) {
	// A success while closed leaves the accumulated failure count in
	// place, so a later failure can still trip the breaker.
	b := NewCircuitBreaker(2, time.Minute, logging.NewNopLogger())
	boom := errors.New("boom")

	require.Error(t, b.Call(func() error { return boom }))
	require.NoError(t, b.Call(func() error { return nil }))
	require.Error(t, b.Call(func() error { return boom }))
	assert.Equal(t, CircuitOpen, b.State())
}

func TestBreakerDefaults(t *testing.T) {
	b := NewCircuitBreaker(0, 0, nil)
	assert.Equal(t, 5, b.threshold)
	assert.Equal(t, 60*time.Second, b.timeout)
	assert.Equal(t, CircuitClosed, b.State())
}
