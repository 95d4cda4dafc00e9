package utils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetryWithResult_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastRetry(3), func() (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_RecoverOnRetry(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastRetry(2), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, fmt.Errorf("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 2, calls)
}

func TestRetryWithResult_ExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(3), func() (int, error) {
		calls++
		return 0, fmt.Errorf("attempt %d failed", calls)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "attempt 3")
}

func TestRetryWithResult_CancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := RetryWithResult(ctx, RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  time.Minute,
		MaxDelay:      time.Minute,
		BackoffFactor: 1.0,
	}, func() (int, error) {
		calls++
		cancel()
		return 0, fmt.Errorf("fail")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation stops further attempts")
}

func TestSingleRetry_TwoAttempts(t *testing.T) {
	assert.Equal(t, 2, SingleRetry().MaxAttempts)
}
