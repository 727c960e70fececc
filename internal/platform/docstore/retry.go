package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds how often an atomic update is retried after a conflict.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy is used when a store is built without an explicit policy.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, Backoff: 20 * time.Millisecond}

// Do runs fn until it succeeds, fails with an error retryable does not accept,
// or the attempts are used up. The delay grows linearly with the attempt number.
func (p RetryPolicy) Do(ctx context.Context, retryable func(error) bool, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

// IsConflict reports whether err is a write conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
