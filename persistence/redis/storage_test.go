package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *redisStorage {
	addr := os.Getenv("FLOWFIRST_TEST_REDIS")
	if len(addr) == 0 {
		t.Skip("FLOWFIRST_TEST_REDIS not set")
	}
	s := NewRedisStorage(Config{Addrs: []string{addr}, Namespace: "test-" + uuid.NewString()})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisFlowRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	flow := model.Flow{Id: "f1", WorkspaceId: "ws", Definition: model.FlowDefinition{Start: "a"}}
	require.NoError(t, s.SaveFlow(ctx, flow))

	got, err := s.GetFlow(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, "a", got.Definition.Start)

	flows, err := s.ListFlows(ctx, "ws")
	require.NoError(t, err)
	require.Len(t, flows, 1)

	require.NoError(t, s.DeleteFlow(ctx, "f1"))
	_, err = s.GetFlow(ctx, "f1")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestRedisConsumeWaitToken(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.CreateWaitToken(ctx, &model.WaitToken{Token: "tok", ExecutionId: "e1"}))
	require.NoError(t, s.ConsumeWaitToken(ctx, "tok", time.Now()))
	err := s.ConsumeWaitToken(ctx, "tok", time.Now())
	require.Equal(t, model.TOKEN_ALREADY_CONSUMED, model.KindOf(err))
	err = s.ConsumeWaitToken(ctx, "missing", time.Now())
	require.Equal(t, model.TOKEN_NOT_FOUND, model.KindOf(err))
}

func TestRedisSwapServiceHealth(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	next := model.ServiceHealth{Scope: "ws", NodeId: "n1", State: model.CIRCUIT_CLOSED, Failures: 1}
	ok, err := s.SwapServiceHealth(ctx, 0, next)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.SwapServiceHealth(ctx, 0, next)
	require.NoError(t, err)
	require.False(t, ok)

	h, err := s.GetServiceHealth(ctx, "ws", "n1")
	require.NoError(t, err)
	require.Equal(t, int64(1), h.Version)

	all, err := s.ListServiceHealth(ctx, "ws")
	require.NoError(t, err)
	require.Len(t, all, 1)
}
