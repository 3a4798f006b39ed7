package device

import (
	"context"
	"time"
)

// RetryPolicy bounds delivery to a device: at most MaxAttempts tries, each
// cut off after AttemptTimeout, sleeping Backoff(n) after failed attempt n.
type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Backoff        func(attempt int) time.Duration
}

// LinearBackoff waits attempt × unit.
func LinearBackoff(unit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * unit
	}
}

// DefaultRetryPolicy is 3 attempts of 5s with 1s linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		AttemptTimeout: 5 * time.Second,
		Backoff:        LinearBackoff(time.Second),
	}
}

// Do runs fn until it succeeds or the attempts are spent. It returns the
// number of attempts made and the last error. Cancelling ctx stops both
// the running attempt and any pending backoff.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = p.try(ctx, attempt, fn)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == maxAttempts {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return maxAttempts, lastErr
}

func (p RetryPolicy) try(ctx context.Context, attempt int, fn func(context.Context, int) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx, attempt)
}
