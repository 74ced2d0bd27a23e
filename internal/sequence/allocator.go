// Package sequence allocates gap-free, per-store, per-document-type
// monotonic numbers under contention.
package sequence

import (
	"context"
	"fmt"

	"github.com/meridian-retail/meridian/internal/shared"
)

// CounterRepo is the storage contract for the allocator. Increment must be
// atomic; InsertInitial must fail with a transient conflict when a
// concurrent caller inserted the counter row first.
type CounterRepo interface {
	// Increment bumps the counter and returns the allocated number. The
	// second return is false when no counter row exists yet.
	Increment(ctx context.Context, storeID int64, docType string) (int64, bool, error)
	// InsertInitial creates the counter row and returns the first number.
	InsertInitial(ctx context.Context, storeID int64, docType string) (int64, error)
}

// Allocator hands out document numbers like "SAL-3-0042".
type Allocator struct {
	repo  CounterRepo
	retry shared.RetryPolicy
}

// NewAllocator constructs Allocator.
func NewAllocator(repo CounterRepo, retry shared.RetryPolicy) *Allocator {
	return &Allocator{repo: repo, retry: retry}
}

// Next allocates the next number for (store, docType). Numbers never repeat
// and are strictly increasing per key, even under concurrent callers: the
// increment path is atomic and the insert race surfaces as a transient
// conflict that re-enters the increment path.
func (a *Allocator) Next(ctx context.Context, storeID int64, docType, prefix string) (string, int64, error) {
	if storeID == 0 {
		return "", 0, shared.Validation("sequence.next", "store required")
	}
	if docType == "" {
		return "", 0, shared.Validation("sequence.next", "document type required")
	}
	var number int64
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		n, found, err := a.repo.Increment(ctx, storeID, docType)
		if err != nil {
			return err
		}
		if found {
			number = n
			return nil
		}
		n, err = a.repo.InsertInitial(ctx, storeID, docType)
		if err != nil {
			return err
		}
		number = n
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	return Format(prefix, storeID, number), number, nil
}

// Format renders the canonical document code.
func Format(prefix string, storeID, number int64) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, storeID, number)
}
