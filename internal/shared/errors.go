package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind is the closed set of failure categories the core can return.
// Callers dispatch on the kind to decide between "try again" and "this is
// not allowed".
type ErrorKind uint8

const (
	// KindValidation marks malformed input, rejected before any write.
	KindValidation ErrorKind = iota + 1
	// KindConflict marks an operation that would violate an invariant at
	// its effective time (oversell, missing cost basis, double void).
	KindConflict
	// KindLifecycle marks an illegal document state transition.
	KindLifecycle
	// KindNotFound marks an unknown entity id.
	KindNotFound
)

// String returns the kind label used in logs and problem responses.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindLifecycle:
		return "lifecycle"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// DomainError carries the kind, the failing operation and an optional cause.
type DomainError struct {
	Kind      ErrorKind
	Op        string
	Msg       string
	Err       error
	Transient bool
}

func (e *DomainError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return e.Msg
}

// Unwrap exposes the cause for errors.Is chains.
func (e *DomainError) Unwrap() error { return e.Err }

// Validation builds a KindValidation error.
func Validation(op, format string, args ...any) error {
	return &DomainError{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Conflict builds a terminal KindConflict error. It is never retried.
func Conflict(op, format string, args ...any) error {
	return &DomainError{Kind: KindConflict, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// TransientConflict builds a KindConflict error caused by contention
// (lock timeout, version mismatch). The retry layer treats it as retryable.
func TransientConflict(op, format string, args ...any) error {
	return &DomainError{Kind: KindConflict, Op: op, Msg: fmt.Sprintf(format, args...), Transient: true}
}

// Lifecycle builds a KindLifecycle error.
func Lifecycle(op, format string, args ...any) error {
	return &DomainError{Kind: KindLifecycle, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(op, format string, args ...any) error {
	return &DomainError{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, reporting whether err is a DomainError.
func KindOf(err error) (ErrorKind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Postgres error codes treated as transient contention.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// IsTransient reports whether err stems from contention that a bounded
// retry may resolve. Business-rule conflicts are never transient.
func IsTransient(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Transient
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
	}
	return false
}
