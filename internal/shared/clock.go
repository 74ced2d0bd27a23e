package shared

import "time"

// NowFunc supplies the wall clock; injectable for tests.
type NowFunc func() time.Time

// DefaultFutureSkew is the tolerance for occurred_at values ahead of the
// server clock.
const DefaultFutureSkew = 2 * time.Minute

// NormalizeOccurredAt converts a business timestamp to UTC, defaulting a
// zero value to now and rejecting values beyond the future skew tolerance.
func NormalizeOccurredAt(op string, now, occurredAt time.Time, skew time.Duration) (time.Time, error) {
	if skew <= 0 {
		skew = DefaultFutureSkew
	}
	now = now.UTC()
	if occurredAt.IsZero() {
		return now, nil
	}
	t := occurredAt.UTC()
	if t.After(now.Add(skew)) {
		return time.Time{}, Validation(op, "occurred_at %s is in the future", t.Format(time.RFC3339))
	}
	return t, nil
}
