package retry

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/amc-simulator/amc_simulator/pkg/errors"
)

// RetryConfig bounds an in-process retry loop. Registrar retries are not
// done here; they are persisted on the transaction and driven by Policy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	// OnRetry, when set, is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryableFunc represents a function that can be retried
type RetryableFunc func(ctx context.Context) error

// IsRetryableFunc determines if an error should trigger a retry. A nil
// IsRetryableFunc retries transient and timeout errors only.
type IsRetryableFunc func(error) bool

// WithExponentialBackoff runs fn until it succeeds, returns a non-retryable
// error, or MaxAttempts is reached.
func WithExponentialBackoff(ctx context.Context, config RetryConfig, fn RetryableFunc, isRetryable IsRetryableFunc) error {
	if isRetryable == nil {
		isRetryable = pkgerrors.ShouldRetry
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == config.MaxAttempts {
			break
		}

		delay := CalculateExponential(config.BaseDelay, config.Multiplier, attempt, config.MaxDelay)
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled by context: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", config.MaxAttempts, lastErr)
}
