package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementPolicy_Delay(t *testing.T) {
	p := SettlementPolicy()

	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, time.Minute, p.Delay(1))
	assert.Equal(t, 2*time.Minute, p.Delay(2))
	assert.Equal(t, 4*time.Minute, p.Delay(3))
	assert.Equal(t, 30*time.Minute, p.Delay(10))
}

func TestSettlementPolicy_Exhausted(t *testing.T) {
	p := SettlementPolicy()
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.False(t, Policy{}.Exhausted(100))
}

func TestWithExponentialBackoff(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	transient := &pq.Error{Code: "40001"}

	t.Run("succeeds after transient failure", func(t *testing.T) {
		calls := 0
		var retried []int
		c := cfg
		c.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

		err := WithExponentialBackoff(context.Background(), c, func(context.Context) error {
			calls++
			if calls < 2 {
				return transient
			}
			return nil
		}, nil)

		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, []int{1}, retried)
	})

	t.Run("returns non-retryable error unchanged", func(t *testing.T) {
		calls := 0
		missing := errors.New(`relation "schemes" does not exist`)
		err := WithExponentialBackoff(context.Background(), cfg, func(context.Context) error {
			calls++
			return missing
		}, nil)

		assert.Equal(t, missing, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithExponentialBackoff(context.Background(), cfg, func(context.Context) error {
			calls++
			return transient
		}, nil)

		require.ErrorIs(t, err, transient)
		assert.Equal(t, 3, calls)
	})

	t.Run("custom predicate", func(t *testing.T) {
		calls := 0
		err := WithExponentialBackoff(context.Background(), cfg, func(context.Context) error {
			calls++
			return transient
		}, func(error) bool { return false })

		require.ErrorIs(t, err, transient)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := RetryConfig{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 1}
		slow.OnRetry = func(int, error, time.Duration) { cancel() }

		err := WithExponentialBackoff(ctx, slow, func(context.Context) error { return transient }, nil)
		require.ErrorIs(t, err, context.Canceled)
	})
}
