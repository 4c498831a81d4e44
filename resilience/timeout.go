package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohitkumar/flowfirst/model"
)

type outcome[T any] struct {
	value T
	err   error
}

// WithTimeout runs fn under a deadline. fn keeps running in the background if
// it ignores ctx, but the caller gets a Timeout error as soon as the deadline
// passes. A timeout <= 0 runs fn directly. Panics in fn come back as errors.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, label string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return protect(ctx, fn)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := protect(tctx, fn)
		done <- outcome[T]{value: v, err: err}
	}()

	var zero T
	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, model.NewTimeoutError(label, int(timeout/time.Millisecond))
		}
		return res.value, res.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, model.NewTimeoutError(label, int(timeout/time.Millisecond))
	}
}

func protect[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
