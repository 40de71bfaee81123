package gateway

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy retries an operation with exponential backoff and optional
// jitter. It is a value object so each upstream can carry its own policy.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      float64 // fraction of the delay added randomly, 0 disables
}

// Do runs fn up to MaxAttempts times, sleeping BaseDelay*2^n between
// attempts. The context cancels both the waits and further attempts; the
// last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		delay := p.BaseDelay << uint(i)
		if p.Jitter > 0 {
			delay += time.Duration(rand.Float64() * p.Jitter * float64(delay))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
