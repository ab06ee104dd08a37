// internal/service/retry.go
package service

import (
	"context"
	"time"
)

// BackoffFn maps a 1-based attempt number to the delay taken before the
// next attempt.
type BackoffFn func(attempt int) time.Duration

// ExponentialBackoff doubles from base: base, 2*base, 4*base...
func ExponentialBackoff(base time.Duration) BackoffFn {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
		}
		return d
	}
}

// withRetry runs op up to maxAttempts times, sleeping backoff(attempt)
// between tries. It returns the last error, or nil once op succeeds.
// The sequence always runs to completion: a recorded failure means the
// full attempt budget was spent, not that a caller gave up mid-way.
// Cancellation belongs between retry sequences, not inside one.
func withRetry(maxAttempts int, backoff BackoffFn, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		time.Sleep(backoff(attempt))
	}
	return lastErr
}

// sleepCtx waits for d or until ctx is done. Reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
