package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohitkumar/flowfirst/action"
	"github.com/mohitkumar/flowfirst/analytics"
	"github.com/mohitkumar/flowfirst/engine"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"github.com/mohitkumar/flowfirst/persistence/memory"
	"github.com/stretchr/testify/require"
)

type failingOnce struct {
	calls atomic.Int32
}

func (f *failingOnce) Execute(ctx context.Context, req action.Request) (action.Result, error) {
	if f.calls.Add(1) == 1 {
		return action.Result{}, errors.New("not yet")
	}
	return action.Result{Output: req.Input}, nil
}

type invalidations struct {
	scopes []string
}

func (i *invalidations) Invalidate(scope string) {
	i.scopes = append(i.scopes, scope)
}

func approvalFlow(last string) model.Flow {
	return model.Flow{Id: "approval", WorkspaceId: "ws", Definition: model.FlowDefinition{
		Start: "start",
		Nodes: []model.Node{
			{Id: "start", Type: "hello", Next: "ask"},
			{Id: "ask", Type: "form", Config: map[string]any{"title": "Approve?", "description": "expense", "fields": []any{"approved"}}},
			{Id: "after", Type: last},
		},
		Edges: []model.Edge{{From: "ask", To: "after"}},
	}}
}

func newService(t *testing.T, flows ...model.Flow) (*WorkflowExecutionService, persistence.Storage, *action.Registry, *invalidations) {
	store := memory.NewMemoryStorage()
	for _, f := range flows {
		require.NoError(t, store.SaveFlow(context.Background(), f))
	}
	registry := action.NewDefaultRegistry(nil)
	e := engine.NewEngine(engine.Config{PublicBaseURL: "http://flows.local"}, store, store, registry, analytics.NewStatRecorder(store))
	inv := &invalidations{}
	return NewWorkflowExecutionService(e, store, inv), store, registry, inv
}

func TestResumeConsumesTokenOnce(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newService(t, approvalFlow("hello"))

	res, err := svc.RunFlow(ctx, "approval", map[string]any{"amount": 10})
	require.NoError(t, err)
	require.True(t, res.IsWaiting())
	token := res.Waiting.Token

	form, err := svc.GetWaitForm(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "Approve?", form.Title)
	require.Equal(t, "expense", form.Description)
	require.Equal(t, []any{"approved"}, form.Fields)
	require.Equal(t, res.ExecutionId, form.ExecutionId)

	resumed, err := svc.ResumeFlow(ctx, token, map[string]any{"approved": true})
	require.NoError(t, err)
	require.True(t, resumed.Resumed)
	require.Contains(t, resumed.Result.Bag, "start")
	require.Contains(t, resumed.Result.Bag, "after")

	_, err = svc.ResumeFlow(ctx, token, map[string]any{"approved": false})
	require.Equal(t, model.TOKEN_ALREADY_CONSUMED, model.KindOf(err))
	_, err = svc.GetWaitForm(ctx, token)
	require.Equal(t, model.TOKEN_ALREADY_CONSUMED, model.KindOf(err))

	wt, err := store.GetWaitToken(ctx, token)
	require.NoError(t, err)
	require.True(t, wt.Consumed())

	view, err := svc.GetExecution(ctx, res.ExecutionId)
	require.NoError(t, err)
	require.Equal(t, model.SUCCESS, view.Execution.Status)
	require.NotEmpty(t, view.Logs)
}

func TestConcurrentResumesRunOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t, approvalFlow("hello"))
	res, err := svc.RunFlow(ctx, "approval", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var succeeded, rejected atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ResumeFlow(ctx, res.Waiting.Token, map[string]any{"approved": true})
			if err == nil {
				succeeded.Add(1)
			} else if model.KindOf(err) == model.TOKEN_ALREADY_CONSUMED {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), succeeded.Load())
	require.Equal(t, int32(7), rejected.Load())
	require.Equal(t, 0, svc.locks.Len())
}

func TestFailedResumeKeepsToken(t *testing.T) {
	ctx := context.Background()
	svc, _, registry, _ := newService(t, approvalFlow("eventually"))
	require.NoError(t, registry.Register("eventually", &failingOnce{}))

	res, err := svc.RunFlow(ctx, "approval", nil)
	require.NoError(t, err)

	_, err = svc.ResumeFlow(ctx, res.Waiting.Token, map[string]any{"approved": true})
	require.Equal(t, model.STEP_EXECUTION_FAILED, model.KindOf(err))

	require.Equal(t, 0, svc.locks.Len())

	resumed, err := svc.ResumeFlow(ctx, res.Waiting.Token, map[string]any{"approved": true})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"approved": true}, resumed.Result.Result)
	require.Equal(t, 0, svc.locks.Len())

	_, err = svc.ResumeFlow(ctx, res.Waiting.Token, nil)
	require.Equal(t, model.TOKEN_ALREADY_CONSUMED, model.KindOf(err))
	require.Equal(t, 0, svc.locks.Len())
}

func TestUnknownTokensDoNotPinLocks(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)

	for i := 0; i < 50; i++ {
		_, err := svc.ResumeFlow(ctx, fmt.Sprintf("unknown-%d", i), nil)
		require.Equal(t, model.TOKEN_NOT_FOUND, model.KindOf(err))
	}
	require.Equal(t, 0, svc.locks.Len())
}

func TestCancelledCallerDoesNotCutRunShort(t *testing.T) {
	slow := model.Flow{Id: "slow", WorkspaceId: "ws", Definition: model.FlowDefinition{
		Start: "d",
		Nodes: []model.Node{{
			Id:         "d",
			Type:       "delay",
			Config:     map[string]any{"ms": 100},
			Resilience: &model.ResiliencePolicy{FailureThreshold: 1},
		}},
	}}
	svc, store, _, _ := newService(t, slow)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res, err := svc.RunFlow(ctx, "slow", map[string]any{"n": 1})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"n": 1}, res.Result)

	exec, err := store.GetExecution(context.Background(), res.ExecutionId)
	require.NoError(t, err)
	require.Equal(t, model.SUCCESS, exec.Status)

	health, err := store.GetServiceHealth(context.Background(), "ws", "d")
	require.NoError(t, err)
	require.Equal(t, model.CIRCUIT_CLOSED, health.State)
	require.Equal(t, 0, health.Failures)
}

func TestUnknownTokenAndExecution(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)

	_, err := svc.ResumeFlow(ctx, "missing", nil)
	require.Equal(t, model.TOKEN_NOT_FOUND, model.KindOf(err))
	_, err = svc.GetWaitForm(ctx, "missing")
	require.Equal(t, model.TOKEN_NOT_FOUND, model.KindOf(err))
	_, err = svc.GetExecution(ctx, "missing")
	require.Equal(t, model.EXECUTION_NOT_FOUND, model.KindOf(err))
}

func TestWorkspaceMetrics(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t, approvalFlow("hello"))
	_, err := svc.RunFlow(ctx, "approval", nil)
	require.NoError(t, err)

	metrics, err := svc.WorkspaceMetrics(ctx, "ws")
	require.NoError(t, err)
	require.Len(t, metrics.Stats, 2)
	require.Len(t, metrics.Health, 2)
	for _, h := range metrics.Health {
		require.Equal(t, model.CIRCUIT_CLOSED, h.State)
	}
}

func TestAddWebhook(t *testing.T) {
	ctx := context.Background()
	svc, _, _, inv := newService(t)

	_, err := svc.AddWebhook(ctx, "ws", "not a url", "")
	require.Equal(t, model.INVALID_REQUEST, model.KindOf(err))

	hook, err := svc.AddWebhook(ctx, "ws", "https://example.com/hook", "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, hook.Id)
	require.True(t, hook.Active)
	require.Equal(t, []string{"ws"}, inv.scopes)

	hooks, err := svc.ListWebhooks(ctx, "ws")
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	require.Equal(t, "https://example.com/hook", hooks[0].Url)
}
