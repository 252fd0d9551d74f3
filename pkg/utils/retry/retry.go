package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetry tells Blocking and Go to call the function again.
//
// Wrap a cause with it to make the cause retried: fmt.Errorf("%w: %w", ErrRetry, err)
var ErrRetry = errors.New("retry")

// ErrGaveUp is returned by a Backoff made with Limit when attempts are exhausted.
var ErrGaveUp = errors.New("retry: gave up")

// Backoff is a (blocking) function returns when to retry.
//
// # Args
//
// - context: context. If context is canceled, Backoff should return ctx.Err().
//
// # Returns
//
// - error: nil if retry, non-nil if not.
type Backoff func(context.Context) error

// StaticBackoff returns a Backoff function that waits for a fixed interval.
var StaticBackoff = func(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
var ExponentialBackoff = func(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			interval = time.Duration(int64(float64(interval) * r))
			return nil
		}
	}
}

// Limit makes b give up after it has been called `times` times.
func Limit(b Backoff, times int) Backoff {
	called := 0
	return func(ctx context.Context) error {
		if times <= called {
			return ErrGaveUp
		}
		called += 1
		return b(ctx)
	}
}

// Blocking calls f until it returns nil or non-retry error.
//
// f is called at once, and again after each backoff while it returns ErrRetry.
//
// # Returns
//
// - T: last return value of f
//
// - error: error returned by f, or by the backoff when it stops retrying.
// When the backoff gives up, the last error of f is joined.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	for {
		last, err := f()
		if err == nil {
			return last, nil
		}
		if !errors.Is(err, ErrRetry) {
			return last, err
		}
		if berr := b(ctx); berr != nil {
			return last, errors.Join(berr, err)
		}
	}
}

type Result[T any] struct {
	Value T
	Err   error
}

// Go retries function f in background goroutine.
//
// The returned channel receives exactly one Result and is closed.
// A panic in f is recovered and reported as Err.
func Go[T any](ctx context.Context, b Backoff, f func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)

	go func() {
		defer close(ch)
		defer func() {
			r := recover()
			var err error
			switch rr := r.(type) {
			case nil:
				return
			case error:
				err = rr
			default:
				err = fmt.Errorf("%+v", rr)
			}
			ch <- Result[T]{Err: err}
		}()

		ret, err := Blocking(ctx, b, f)
		ch <- Result[T]{Value: ret, Err: err}
	}()

	return ch
}
