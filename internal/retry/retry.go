// Package retry provides a small retry helper with exponential backoff and
// jitter, used by the ingestion pipeline for transient store errors.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do will not retry it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do calls fn up to maxAttempts times with exponential backoff. It stops
// early when fn succeeds, fn returns a permanent error, or ctx is cancelled.
// baseDelay doubles on each retry with +-25% jitter. onRetry, when non-nil,
// runs before every sleep with the attempt's error.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error, onRetry func(error)) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		if attempt == maxAttempts-1 {
			break
		}

		if onRetry != nil {
			onRetry(err)
		}

		jitter := delay / 4
		sleep := delay - jitter + time.Duration(rand.Int63n(int64(2*jitter+1)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay *= 2
	}

	return err
}
