package resilience

import (
	"context"
	"errors"
	"fmt"
)

// ErrPanicked is wrapped by [Bounded] when the call it ran panicked.
var ErrPanicked = errors.New("resilience: call panicked")

// Bounded runs fn on its own goroutine and returns as soon as fn returns or
// ctx is done, whichever happens first. When ctx ends first the call is
// abandoned: its eventual result is discarded and the returned error wraps
// ctx.Err(), so a backend that ignores cancellation cannot hold the caller
// past its deadline. A panic inside fn is returned as an error wrapping
// [ErrPanicked].
func Bounded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrPanicked, rec)}
			}
		}()
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("call abandoned: %w", ctx.Err())
	}
}
