package batch

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("invalid priority \"BOGUS\"")))
	assert.False(t, IsTransient(errors.New("no rows in result set")))

	assert.True(t, IsTransient(errors.New("read tcp 10.0.0.1:5432: connection reset by peer")))
	assert.True(t, IsTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, IsTransient(errors.New("i/o timeout")))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(&net.DNSError{Err: "no such host", Name: "db.internal"}))
}

func TestRetryPolicyRetriesTransientOnly(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}

	t.Run("transient then success", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error fails immediately", func(t *testing.T) {
		calls := 0
		permanent := errors.New("validation failed")
		err := policy.Do(context.Background(), func() error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("budget exhausted returns last error", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func() error {
			calls++
			return errors.New("i/o timeout")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})
}

func TestCircuitBreaker(t *testing.T) {
	breaker := NewCircuitBreaker(2)
	transient := errors.New("connection refused")

	breaker.RecordFailure(transient)
	assert.False(t, breaker.Open())

	breaker.RecordFailure(transient)
	assert.True(t, breaker.Open())

	// A success closes it again.
	breaker.RecordSuccess()
	assert.False(t, breaker.Open())

	// Permanent failures prove the backend is up and reset the streak.
	breaker.RecordFailure(transient)
	breaker.RecordFailure(errors.New("bad request"))
	breaker.RecordFailure(transient)
	assert.False(t, breaker.Open())
}
