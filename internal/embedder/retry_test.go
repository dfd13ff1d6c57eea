package embedder

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after transient error", func(t *testing.T) {
		callCount := 0
		result, err := retryWithBackoff(context.Background(), fastRetry(), func() (string, error) {
			callCount++
			if callCount < 2 {
				return "", fmt.Errorf("transient error")
			}
			return "success", nil
		})

		assert.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, 2, callCount)
	})

	t.Run("exponential backoff timing", func(t *testing.T) {
		config := RetryConfig{
			MaxRetries: 3,
			BaseDelay:  10 * time.Millisecond,
			MaxDelay:   100 * time.Millisecond,
			Multiplier: 2.0,
		}

		callCount := 0
		start := time.Now()
		_, err := retryWithBackoff(context.Background(), config, func() (int, error) {
			callCount++
			return 0, fmt.Errorf("always fails")
		})

		assert.Error(t, err)
		assert.Equal(t, 3, callCount)
		// 10ms + 20ms between the three attempts
		assert.GreaterOrEqual(t, time.Since(start).Milliseconds(), int64(30))
	})

	t.Run("returns last error", func(t *testing.T) {
		config := RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2.0}

		callCount := 0
		_, err := retryWithBackoff(context.Background(), config, func() (bool, error) {
			callCount++
			return false, fmt.Errorf("error %d", callCount)
		})

		assert.Equal(t, 5, callCount)
		assert.EqualError(t, err, "error 5")
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		config := RetryConfig{MaxRetries: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2.0}

		callCount := 0
		_, err := retryWithBackoff(ctx, config, func() (string, error) {
			callCount++
			if callCount == 2 {
				cancel()
			}
			return "", fmt.Errorf("error")
		})

		assert.Equal(t, context.Canceled, err)
		assert.LessOrEqual(t, callCount, 3)
	})

	t.Run("max delay cap is enforced", func(t *testing.T) {
		config := RetryConfig{MaxRetries: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 4.0}

		var delays []time.Duration
		last := time.Now()
		callCount := 0
		_, _ = retryWithBackoff(context.Background(), config, func() (int, error) {
			callCount++
			if callCount > 1 {
				delays = append(delays, time.Since(last))
			}
			last = time.Now()
			return 0, fmt.Errorf("error")
		})

		for i, delay := range delays {
			assert.LessOrEqual(t, delay.Milliseconds(), int64(40), "delay %d should be capped", i)
		}
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		cause := fmt.Errorf("api error 401: unauthorized")
		callCount := 0
		_, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			callCount++
			return 0, permanent(cause)
		})

		assert.Equal(t, 1, callCount)
		assert.Equal(t, cause, err)
	})
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, retryableStatus(http.StatusInternalServerError))
	assert.True(t, retryableStatus(http.StatusServiceUnavailable))
	assert.True(t, retryableStatus(http.StatusTooManyRequests))
	assert.True(t, retryableStatus(http.StatusRequestTimeout))
	assert.False(t, retryableStatus(http.StatusUnauthorized))
	assert.False(t, retryableStatus(http.StatusBadRequest))
}
