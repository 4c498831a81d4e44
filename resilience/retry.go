package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mohitkumar/flowfirst/model"
)

// NewBackOff builds the delay schedule between attempts: baseMs doubling up to
// maxMs with 20% jitter, stopping after maxAttempts-1 retries or when ctx ends.
func NewBackOff(ctx context.Context, policy model.ResiliencePolicy) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(policy.BaseMs) * time.Millisecond
	b.MaxInterval = time.Duration(policy.MaxMs) * time.Millisecond
	b.RandomizationFactor = 0.2
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()

	retries := policy.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Retry calls fn until it succeeds or the policy's attempts are used up.
// The error of the last attempt is returned. CircuitOpen errors are never
// retried. onFailure, when set, sees every failed attempt.
func Retry[T any](ctx context.Context, policy model.ResiliencePolicy, fn func(ctx context.Context, attempt int) (T, error), onFailure func(attempt int, err error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := fn(ctx, attempt)
		if err != nil {
			if onFailure != nil {
				onFailure(attempt, err)
			}
			if errors.Is(err, &model.FlowError{Kind: model.CIRCUIT_OPEN}) {
				return v, backoff.Permanent(err)
			}
		}
		return v, err
	}
	return backoff.RetryWithData(operation, NewBackOff(ctx, policy))
}

// Execute runs one step invocation under the policy: every attempt gets its
// own timeout, failures that are not already classified become
// StepExecutionFailed, and attempts are retried with backoff.
func Execute[T any](ctx context.Context, policy model.ResiliencePolicy, label string, fn func(context.Context) (T, error), onFailure func(attempt int, err error)) (T, error) {
	return Retry(ctx, policy, func(ctx context.Context, attempt int) (T, error) {
		v, err := WithTimeout(ctx, policy.Timeout(), label, fn)
		if err == nil {
			return v, nil
		}
		var fe *model.FlowError
		if !errors.As(err, &fe) && ctx.Err() == nil {
			err = model.NewStepExecutionError(label, err)
		}
		return v, err
	}, onFailure)
}
