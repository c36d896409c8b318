package completion

import (
	"context"
	"time"
)

// RetryConfig configures exponential backoff retry behavior
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first one
	BaseDelay   time.Duration // Delay before the first retry
	MaxDelay    time.Duration // Maximum delay between retries
	Multiplier  float64       // Exponential backoff multiplier
}

// DefaultRetryConfig returns the reference retry policy
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultRetries + 1,
		BaseDelay:   2 * time.Second,
		MaxDelay:    120 * time.Second,
		Multiplier:  BackoffMultiplier,
	}
}

// retryWithBackoff executes fn until it succeeds, returns a non-retryable error,
// or the attempt budget runs out. It returns the number of attempts made.
// Retry is skipped on context cancellation.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, retryable func(error) bool,
	onRetry func(attempt int, err error, wait time.Duration), fn func() (T, error)) (T, int, error) {

	var lastErr error
	var zero T
	backoff := config.BaseDelay
	attempts := max(config.MaxAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, attempt, nil
		}

		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, attempt, ctx.Err()
		}

		if !retryable(err) || attempt == attempts {
			return zero, attempt, lastErr
		}

		wait := backoff
		if ra := retryAfter(err); ra > wait {
			wait = ra
		}
		if config.MaxDelay > 0 && wait > config.MaxDelay {
			wait = config.MaxDelay
		}
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if config.MaxDelay > 0 && backoff > config.MaxDelay {
			backoff = config.MaxDelay
		}
	}

	return zero, attempts, lastErr
}
