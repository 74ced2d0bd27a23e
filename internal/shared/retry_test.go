package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryStopsOnTerminalError(t *testing.T) {
	policy := RetryPolicy{Attempts: 5, BaseDelay: time.Millisecond}
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return Conflict("sale.post", "insufficient stock")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.True(t, IsKind(err, KindConflict))
	require.NotErrorIs(t, err, ErrRetryExhausted)
}

func TestRetryBoundedAttempts(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return TransientConflict("sale.post", "version mismatch")
	})
	require.ErrorIs(t, err, ErrRetryExhausted)
	require.Equal(t, 3, calls)
	require.True(t, IsKind(err, KindConflict))
}

func TestRetryRecoversAfterTransientFailure(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return TransientConflict("sequence.next", "counter insert race")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetrySchedule(t *testing.T) {
	policy := RetryPolicy{Attempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond}
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		250 * time.Millisecond,
	}, policy.Schedule())
}

func TestRetryHonoursContextCancellation(t *testing.T) {
	policy := RetryPolicy{Attempts: 10, BaseDelay: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := policy.Do(ctx, func(context.Context) error {
		calls++
		return TransientConflict("payments.add", "row locked")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.GreaterOrEqual(t, calls, 1)
}

func TestKindDispatch(t *testing.T) {
	err := Validation("inventory.receive", "quantity must be positive")
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindValidation, kind)
	require.False(t, IsTransient(err))

	wrapped := errors.Join(errors.New("outer"), NotFound("sale.get", "sale 42"))
	require.True(t, IsKind(wrapped, KindNotFound))
}
