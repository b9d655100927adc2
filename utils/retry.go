package utils

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a dependency call is attempted.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. Only DependencyFailure errors are retried.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil || !IsKind(err, KindDependency) {
			return err
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return NewDependencyError("retry_aborted", "context ended while retrying", err)
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
