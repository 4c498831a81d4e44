package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence/memory"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) model.ResiliencePolicy {
	p := model.DefaultResiliencePolicy()
	p.MaxAttempts = attempts
	p.BaseMs = 1
	p.MaxMs = 5
	return p
}

func TestRetrySucceedsAfterTwoFailures(t *testing.T) {
	calls := 0
	var failed []int
	v, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}, func(attempt int, err error) {
		failed = append(failed, attempt)
	})
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, failed)
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	_, err := Execute(context.Background(), fastPolicy(2), "webhook w1", func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("boom")
	}, nil)
	require.Error(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, model.STEP_EXECUTION_FAILED, model.KindOf(err))
}

func TestRetryDoesNotRetryCircuitOpen(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context, attempt int) (any, error) {
		calls++
		return nil, model.NewCircuitOpenError("ws", "n1", "open-cooldown")
	}, nil)
	require.Equal(t, model.CIRCUIT_OPEN, model.KindOf(err))
	require.Equal(t, 1, calls)
}

func TestWithTimeout(t *testing.T) {
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, "delay d1", func(ctx context.Context) (any, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})
	require.Equal(t, model.TIMEOUT, model.KindOf(err))
	require.Contains(t, err.Error(), "delay d1")

	v, err := WithTimeout(context.Background(), 0, "hello h1", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, v)

	_, err = WithTimeout(context.Background(), time.Second, "boom", func(ctx context.Context) (int, error) {
		panic("bad step")
	})
	require.ErrorContains(t, err, "bad step")
}

func TestBreakerLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(store).WithClock(func() time.Time { return now })

	policy := model.DefaultResiliencePolicy()
	policy.FailureThreshold = 2
	policy.CooldownMs = 1000

	require.NoError(t, b.Allow(ctx, "ws", "n1", policy))
	require.NoError(t, b.Record(ctx, "ws", "n1", "webhook", policy, false))
	require.NoError(t, b.Allow(ctx, "ws", "n1", policy))
	require.NoError(t, b.Record(ctx, "ws", "n1", "webhook", policy, false))

	err := b.Allow(ctx, "ws", "n1", policy)
	require.Equal(t, model.CIRCUIT_OPEN, model.KindOf(err))

	now = now.Add(1500 * time.Millisecond)
	require.NoError(t, b.Allow(ctx, "ws", "n1", policy))
	h, err := store.GetServiceHealth(ctx, "ws", "n1")
	require.NoError(t, err)
	require.Equal(t, model.CIRCUIT_HALF_OPEN, h.State)

	require.NoError(t, b.Record(ctx, "ws", "n1", "webhook", policy, true))
	h, err = store.GetServiceHealth(ctx, "ws", "n1")
	require.NoError(t, err)
	require.Equal(t, model.CIRCUIT_CLOSED, h.State)
	require.Zero(t, h.Failures)
	require.Nil(t, h.OpenedAt)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(store).WithClock(func() time.Time { return now })
	policy := model.DefaultResiliencePolicy()
	policy.FailureThreshold = 1
	policy.CooldownMs = 1000

	require.NoError(t, b.Record(ctx, "ws", "n1", "webhook", policy, false))
	now = now.Add(2 * time.Second)
	require.NoError(t, b.Allow(ctx, "ws", "n1", policy))
	require.NoError(t, b.Record(ctx, "ws", "n1", "webhook", policy, false))

	h, err := store.GetServiceHealth(ctx, "ws", "n1")
	require.NoError(t, err)
	require.Equal(t, model.CIRCUIT_STATE_OPEN, h.State)
	require.True(t, now.Equal(*h.OpenedAt))
	require.Error(t, b.Allow(ctx, "ws", "n1", policy))
}
