package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sgl-project/cloudxfer/pkg/logging"
)

// RetryConfig controls the retry-with-backoff wrapper. The delay doubles on
// every attempt and is capped at MaxDelay.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsRetryable.
	Retryable func(error) bool
}

// DefaultRetryConfig returns the default retry configuration: three attempts
// starting at a two second delay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Delay:       2 * time.Second,
		MaxDelay:    60 * time.Second,
		Retryable:   IsRetryable,
	}
}

// RetryOperation executes operation with exponential backoff. Non-retriable
// errors are returned immediately; retriable ones are reported as
// retry-attempt events before the next attempt. Exhausting all attempts
// returns the last error.
func RetryOperation(ctx context.Context, config RetryConfig, logger logging.Interface, name string, operation func() error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	retryable := config.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 1 {
				logger.WithField("operation", name).
					WithField("attempt", attempt).
					Info("Operation succeeded after retries")
			}
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}

		logger.WithField("operation", name).
			WithField("attempt", attempt).
			WithField("max_attempts", config.MaxAttempts).
			WithError(err).
			Warn("Retry attempt")

		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoffDelay(attempt, config)):
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", name, config.MaxAttempts, lastErr)
}

func backoffDelay(attempt int, config RetryConfig) time.Duration {
	delay := config.Delay << (attempt - 1)
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}
