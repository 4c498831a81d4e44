package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *pgStorage {
	dsn := os.Getenv("FLOWFIRST_TEST_PG_DSN")
	if len(dsn) == 0 {
		t.Skip("FLOWFIRST_TEST_PG_DSN not set")
	}
	s, err := NewPgStorage(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPgConsumeWaitToken(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	token := uuid.NewString()
	require.NoError(t, s.CreateWaitToken(ctx, &model.WaitToken{Token: token, ExecutionId: "e1"}))
	require.NoError(t, s.ConsumeWaitToken(ctx, token, time.Now()))

	err := s.ConsumeWaitToken(ctx, token, time.Now())
	require.Equal(t, model.TOKEN_ALREADY_CONSUMED, model.KindOf(err))

	got, err := s.GetWaitToken(ctx, token)
	require.NoError(t, err)
	require.True(t, got.Consumed())

	err = s.ConsumeWaitToken(ctx, uuid.NewString(), time.Now())
	require.Equal(t, model.TOKEN_NOT_FOUND, model.KindOf(err))
}

func TestPgSwapServiceStat(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	scope := uuid.NewString()
	next := model.ServiceStat{Scope: scope, NodeId: "n1", Executions: 1}

	ok, err := s.SwapServiceStat(ctx, 0, next)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.SwapServiceStat(ctx, 0, next)
	require.NoError(t, err)
	require.False(t, ok)

	stat, err := s.GetServiceStat(ctx, scope, "n1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stat.Version)

	next.Executions = 2
	ok, err = s.SwapServiceStat(ctx, stat.Version, next)
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := s.ListServiceStats(ctx, scope)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, int64(2), stats[0].Executions)
}
