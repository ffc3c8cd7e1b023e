package utils

import (
	"math/rand"
	"strings"
	"time"
)

const ConcurrencyRetryAttempts = 3

// IsConcurrencyConflict reports whether err is a transient serialization
// failure (MySQL deadlock or lock wait timeout) that is safe to retry after
// the transaction has been rolled back.
func IsConcurrencyConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Deadlock found") ||
		strings.Contains(msg, "Lock wait timeout")
}

// IsDuplicateKey reports whether err is a unique constraint violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Duplicate entry")
}

// WithConcurrencyRetry runs fn, retrying up to ConcurrencyRetryAttempts times
// when fn fails with a retriable serialization error. fn must roll back its
// own transaction before returning; every attempt starts from a clean state.
// Business errors (validation, insufficient stock, mismatch) pass through
// unchanged on the first occurrence.
func WithConcurrencyRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= ConcurrencyRetryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsConcurrencyConflict(err) {
			return err
		}
		if attempt < ConcurrencyRetryAttempts {
			// jittered backoff so competing workers don't collide again in lockstep
			time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond * time.Duration(attempt))
		}
	}
	return err
}
