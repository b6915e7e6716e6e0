// Package loop runs a task repeatedly, passing the last result to the next run.
package loop

import (
	"context"
	"fmt"
	"time"
)

// Next tells the loop what to do after a run.
//
// The zero value continues at once.
type Next struct {
	err      error
	quit     bool
	interval time.Duration
}

func (n Next) String() string {
	switch {
	case n.err != nil:
		return fmt.Sprintf("[break] with error: %v", n.err)
	case n.quit:
		return "[break] without error"
	default:
		return fmt.Sprintf("[continue] interval: %s", n.interval)
	}
}

// Continue runs the task again after interval.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// Break stops the loop. err can be nil.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task receives the last value and returns the new one.
type Task[T any] func(context.Context, T) (T, Next)

// Start runs task from init until it breaks or ctx is done.
//
// It returns the last value with the error given to Break, or ctx.Err().
func Start[T any](ctx context.Context, init T, task Task[T], options ...LoopOption) (T, error) {
	if err := ctx.Err(); err != nil {
		return init, err
	}

	value := init
	for {
		v, next := run(ctx, value, task, options)
		if next.err != nil {
			return v, next.err
		}
		if next.quit {
			return v, nil
		}
		value = v

		timer := time.NewTimer(next.interval)
		select {
		case <-ctx.Done():
			// shutting down comes first.
			timer.Stop()
			return value, ctx.Err()
		case <-timer.C:
		}
	}
}

func run[T any](ctx context.Context, value T, task Task[T], options []LoopOption) (T, Next) {
	lc := &loopConfig{ctx: ctx}
	for _, opt := range options {
		lc = opt(lc)
	}
	if lc.deferred != nil {
		defer lc.deferred()
	}
	return task(lc.ctx, value)
}

type loopConfig struct {
	ctx      context.Context
	deferred func()
}

type LoopOption func(*loopConfig) *loopConfig

// WithTimeout sets a deadline on the context passed to each run.
func WithTimeout(d time.Duration) LoopOption {
	return func(lc *loopConfig) *loopConfig {
		ctx, cancel := context.WithTimeout(lc.ctx, d)
		outer := lc.deferred
		return &loopConfig{
			ctx: ctx,
			deferred: func() {
				cancel()
				if outer != nil {
					outer()
				}
			},
		}
	}
}
