package retry

import (
	"context"
	"errors"
	"time"
)

// ErrRetry marks an error as worth retrying. Wrap or join it with the cause.
var ErrRetry = errors.New("retry")

// Backoff blocks until the next try. It returns ctx.Err() when ctx is done first.
type Backoff func(context.Context) error

// StaticBackoff waits interval for each try.
func StaticBackoff(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// ExponentialBackoff waits initialInterval, then multiplies the interval by r for each try.
func ExponentialBackoff(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			interval = time.Duration(float64(interval) * r)
			return nil
		}
	}
}

// Blocking calls f after each backoff, until f returns nil or an error not marked with ErrRetry.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	var last T
	for {
		if err := b(ctx); err != nil {
			return last, err
		}
		var err error
		last, err = f()
		if err == nil || !errors.Is(err, ErrRetry) {
			return last, err
		}
	}
}

// Attempts calls f up to n times. The first call is made at once, and following ones after b.
//
// When f keeps returning errors marked with ErrRetry, the last one is returned without the mark.
func Attempts[T any](ctx context.Context, n int, b Backoff, f func(ctx context.Context) (T, error)) (T, error) {
	tried := 0
	wait := func(ctx context.Context) error {
		if tried == 0 {
			return ctx.Err()
		}
		return b(ctx)
	}

	var lastErr error
	v, err := Blocking(ctx, wait, func() (T, error) {
		tried += 1
		v, err := f(ctx)
		if err != nil && errors.Is(err, ErrRetry) && n <= tried {
			lastErr = unmark(err)
			var zero T
			return zero, nil
		}
		return v, err
	})
	if lastErr != nil {
		return v, lastErr
	}
	return v, err
}

// unmark removes ErrRetry joined to err.
func unmark(err error) error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return err
	}
	rest := []error{}
	for _, e := range joined.Unwrap() {
		if e != ErrRetry {
			rest = append(rest, e)
		}
	}
	if len(rest) == 1 {
		return rest[0]
	}
	return errors.Join(rest...)
}
