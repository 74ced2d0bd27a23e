package shared

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetryExhausted wraps the final error after all attempts failed on
// transient contention.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryPolicy bounds retries of contended operations. Attempts counts the
// total number of calls, not the number of retries.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy matches the contract for posting operations: three
// attempts, exponential backoff starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Schedule returns the delays slept between consecutive attempts.
func (p RetryPolicy) Schedule() []time.Duration {
	attempts := p.attempts()
	delays := make([]time.Duration, 0, attempts-1)
	for i := 0; i < attempts-1; i++ {
		delays = append(delays, p.delay(i))
	}
	return delays
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << uint(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn, retrying only on transient contention. Validation, lifecycle
// and business-rule conflicts propagate immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.attempts()
	var last error
	for i := 0; i < attempts; i++ {
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !IsTransient(last) {
			return last
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(p.delay(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, last)
}
