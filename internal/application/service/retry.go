package service

import (
	"context"
	"time"
)

// RetryPolicy computes the backoff before retry attempt n (n starts at 1): 2^n units.
// There is no cap and no jitter; max retries is the only bound.
type RetryPolicy struct {
	Unit time.Duration
}

// Backoff returns the wait before the given retry
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	return time.Duration(int64(1)<<uint(retry)) * p.Unit
}

// TotalBackoff is the cumulative wait of a job that exhausts maxRetries
func (p RetryPolicy) TotalBackoff(maxRetries int) time.Duration {
	var total time.Duration
	for i := 1; i <= maxRetries; i++ {
		total += p.Backoff(i)
	}
	return total
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
