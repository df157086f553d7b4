package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Postgres error codes that indicate a transient concurrency failure.
// Unique-key violations are included: two concurrent upserts racing on the
// same (tenant, group key) or (tenant, source) row surface as 23505 and
// succeed on re-read.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// IsTransientConflict reports whether err is a concurrency failure that a
// fresh re-execution of the whole transactional body may resolve.
func IsTransientConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected, pqUniqueViolation:
			return true
		}
	}
	return false
}

// WithConflictRetry re-runs fn up to attempts times while it fails with a
// transient conflict. fn must be safe to re-execute from scratch: it re-reads
// everything it needs on every attempt. Non-transient errors and context
// cancellation return immediately.
func WithConflictRetry(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			// Brief backoff so the winning transaction can commit first.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
			}
		}

		err = fn(ctx)
		if err == nil || !IsTransientConflict(err) {
			return err
		}
	}

	return err
}
