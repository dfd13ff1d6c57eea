package embedder

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryConfig configures exponential backoff for provider calls
type RetryConfig struct {
	MaxRetries int           // Attempts before giving up, including the first
	BaseDelay  time.Duration // Delay after the first failure
	MaxDelay   time.Duration // Ceiling for the delay
	Multiplier float64       // Growth factor between delays
}

// DefaultRetryConfig returns the policy used by remote providers
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: MaxRetries,
		BaseDelay:  time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier: BackoffMultiplier,
	}
}

// permanentError marks a failure that retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// permanent wraps err so retryWithBackoff returns it immediately
func permanent(err error) error {
	return &permanentError{err: err}
}

// retryableStatus reports whether an HTTP status is worth retrying: server
// errors, rate limiting and request timeouts
func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// retryWithBackoff calls fn until it succeeds, returns a permanent error,
// ctx is done or MaxRetries attempts have failed. The last error is returned.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	attempts := max(config.MaxRetries, 1)
	delay := config.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return zero, lastErr
}
