// Package loop runs a task repeatedly until it breaks or its context is done.
//
// The board server drives periodic work (auto-refresh ticks, for example) with it.
package loop

import (
	"context"
	"fmt"
	"time"
)

type Next struct {
	// if not nil, breaks with error
	err error

	// if quit == true and err == nil, breaks without error
	quit bool

	// otherwise, continue loop with interval.
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}
	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// Continue loop after interval.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// Break loop. Pass non-nil err to break with error.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task receives the value which the last run returned, and returns a new one with what to do next.
//
// Zero value of Next (Next{}) equals Continue(0).
type Task[T any] func(context.Context, T) (T, Next)

// Start task in loop.
//
// The task is called with init at first, then with the value returned at the last run.
//
// Example: count 1 to 10
//
//	Start(ctx, 1, func(_ context.Context, value int) (int, Next) {
//		value += 1
//		if 10 <= value {
//			return value, Break(nil)
//		}
//		return value, Continue(0)
//	})
//
// # Returns
//
// - T: T task returns at last.
// This value is always returned whether or not it returns non-nil error together.
//
// - error: error in Break(error), or ctx.Err() when ctx is done.
// It is nil when loop breaks with Break(nil).
func Start[T any](ctx context.Context, init T, task Task[T], options ...LoopOption) (T, error) {
	select {
	case <-ctx.Done():
		return init, ctx.Err()
	default:
	}

	value := init
	for {
		lc := &loopConfig{ctx: ctx}
		for _, opt := range options {
			lc = opt(lc)
		}

		v, n := func() (T, Next) {
			if lc.deferred != nil {
				defer lc.deferred()
			}
			return task(lc.ctx, value)
		}()

		if n.err != nil {
			return v, n.err
		} else if n.quit {
			return v, nil
		}
		value = v

		timer := time.NewTimer(n.interval)
		select {
		case <-ctx.Done():
			// shutting down comes first.
			timer.Stop()
			return value, ctx.Err()
		case <-timer.C:
		}
	}
}

// Every calls tick with period until ctx is done.
//
// The first tick comes after a period. Ticks do not overlap:
// a tick taking long delays the next one.
func Every(ctx context.Context, period time.Duration, tick func(context.Context), options ...LoopOption) error {
	_, err := Start(
		ctx, 0,
		func(ctx context.Context, count uint64) (uint64, Next) {
			if 0 < count {
				tick(ctx)
			}
			return count + 1, Continue(period)
		},
		options...,
	)
	return err
}

type loopConfig struct {
	ctx      context.Context
	deferred func()
}

type LoopOption func(*loopConfig) *loopConfig

// set timeout per run
//
// this timeout is set on context.Context passed to task.
func WithTimeout(d time.Duration) LoopOption {
	return func(lc *loopConfig) *loopConfig {
		ctx, cancel := context.WithTimeout(lc.ctx, d)
		return &loopConfig{
			ctx: ctx,
			deferred: func() {
				if lc.deferred != nil {
					defer lc.deferred()
				}
				cancel()
			},
		}
	}
}
