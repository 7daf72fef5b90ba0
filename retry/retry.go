// Package retry wraps github.com/cenkalti/backoff/v4 with the small,
// attempt-counted API the rest of this module calls through (client.Dial,
// sources.RemoteBlockSource). It never retries application-level "not
// found" results, only transport failures the caller's op returns as an
// error.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Strategy produces the backoff.BackOff used between attempts.
type Strategy func() backoff.BackOff

// Exponential is the default strategy: capped exponential backoff starting
// at 100ms.
func Exponential() Strategy {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 100 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		return b
	}
}

// Fixed retries on a constant interval, useful in tests where exponential
// jitter would make timing assertions flaky.
func Fixed(interval time.Duration) Strategy {
	return func() backoff.BackOff {
		return backoff.NewConstantBackOff(interval)
	}
}

// Do calls op up to maxAttempts times, stopping early on success or on
// context cancellation. It returns the last error if every attempt fails.
func Do(ctx context.Context, maxAttempts int, strategy Strategy, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(strategy(), uint64(maxAttempts-1)), ctx)

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = op()
		return lastErr
	}, b)
	if err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}

// Do2 is the two-return-value variant used by sources, where the op
// produces a value alongside its error.
func Do2[T any](ctx context.Context, maxAttempts int, strategy Strategy, op func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, maxAttempts, strategy, func() error {
		v, err := op()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
