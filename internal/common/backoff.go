package common

import (
	"context"
	"time"
)

// Backoff controls bounded exponential retry behaviour. Delays double from
// InitialInterval up to MaxInterval; MaxRetries bounds the number of retries
// after the first attempt. Retries are never unbounded.
type Backoff struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff matches the retry thresholds observed to work against the
// vendor and weather APIs. These are deliberately configurable rather than
// scattered literals.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, retries are
// exhausted, or ctx is done. retryable decides whether an error is transient.
func Retry(ctx context.Context, b Backoff, retryable func(error) bool, fn func() error) error {
	delay := b.InitialInterval
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
		if attempt >= b.MaxRetries {
			return lastErr
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if b.MaxInterval > 0 && delay > b.MaxInterval {
			delay = b.MaxInterval
		}
	}
}
