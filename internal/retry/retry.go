package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Backoff returns the delay to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

type Config struct {
	Attempts int
	// Backoff defaults to Exponential(200ms, 2s, 100ms) when nil.
	Backoff Backoff
	// OnRetry is called before sleeping after a failed attempt that will be retried.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Retryable reports whether a failure is worth another attempt. Nil retries everything.
	Retryable func(err error) bool
	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Linear waits attempt × unit: unit, 2×unit, 3×unit, ...
func Linear(unit time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return time.Duration(attempt) * unit
	}
}

// Exponential doubles from base up to max and adds up to jitter of random delay.
func Exponential(base, max, jitter time.Duration) Backoff {
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	if max <= 0 {
		max = 2 * time.Second
	}
	return func(attempt int) time.Duration {
		delay := base
		for i := 1; i < attempt && delay < max; i++ {
			delay *= 2
		}
		if jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(jitter)))
		}
		if delay > max {
			delay = max
		}
		return delay
	}
}

// Do calls fn until it succeeds or the attempts are used up. The returned
// error wraps the last failure.
func Do(ctx context.Context, config Config, fn func() error) error {
	attempts := config.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := config.Backoff
	if backoff == nil {
		backoff = Exponential(200*time.Millisecond, 2*time.Second, 100*time.Millisecond)
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("retry interrupted after %d attempt(s): %w", attempt-1, err)
			}
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if config.Retryable != nil && !config.Retryable(err) {
			return fmt.Errorf("retry stopped after %d attempt(s): %w", attempt, err)
		}
		if attempt == attempts {
			break
		}
		delay := backoff(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry interrupted after %d attempt(s): %w", attempt, err)
		}
	}
	return fmt.Errorf("retry failed after %d attempt(s): %w", attempts, lastErr)
}

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
