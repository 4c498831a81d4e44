package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/flowfirst/action"
	"github.com/mohitkumar/flowfirst/analytics"
	"github.com/mohitkumar/flowfirst/flow"
	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"github.com/mohitkumar/flowfirst/resilience"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DEFAULT_MAX_STEPS = 1000

const tracerName = "github.com/mohitkumar/flowfirst/engine"

// FlowLoader resolves flow definitions. A missing flow is reported with an
// error wrapping persistence.ErrNotFound.
type FlowLoader interface {
	GetFlow(ctx context.Context, id string) (*model.Flow, error)
}

type Store interface {
	persistence.ExecutionStorage
	persistence.WaitTokenStorage
	persistence.HealthStorage
}

type Config struct {
	PublicBaseURL string
	MaxSteps      int
	DefaultPolicy model.ResiliencePolicy
}

type Engine struct {
	config   Config
	flows    FlowLoader
	store    Store
	registry *action.Registry
	breaker  *resilience.Breaker
	sink     analytics.Sink
	tracer   trace.Tracer
	now      func() time.Time
}

func NewEngine(config Config, flows FlowLoader, store Store, registry *action.Registry, sink analytics.Sink) *Engine {
	if config.MaxSteps <= 0 {
		config.MaxSteps = DEFAULT_MAX_STEPS
	}
	if config.DefaultPolicy == (model.ResiliencePolicy{}) {
		config.DefaultPolicy = model.DefaultResiliencePolicy()
	}
	if sink == nil {
		sink = analytics.NoopSink{}
	}
	return &Engine{
		config:   config,
		flows:    flows,
		store:    store,
		registry: registry,
		breaker:  resilience.NewBreaker(store),
		sink:     sink,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
}

// Run starts a new execution of flowId at its start node.
func (e *Engine) Run(ctx context.Context, flowId string, input any) (*model.RunResult, error) {
	f, err := e.loadFlow(ctx, flowId)
	if err != nil {
		return nil, err
	}
	exec := &model.Execution{
		Id:          uuid.NewString(),
		FlowId:      f.Id,
		WorkspaceId: f.Scope(),
		Status:      model.RUNNING,
		Input:       input,
		StartedAt:   e.now(),
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}
	logger.Info("starting flow", zap.String("flowId", f.Id), zap.String("executionId", exec.Id))
	e.emit(ctx, f.Scope(), analytics.EVENT_EXECUTION_STARTED, map[string]any{
		"executionId": exec.Id,
		"flowId":      f.Id,
	})
	return e.loop(ctx, f, exec, f.Definition.Start, map[string]any{}, input)
}

// Resume continues a suspended execution at startNodeId with the bag it had
// when it suspended. It does not check or consume wait tokens.
func (e *Engine) Resume(ctx context.Context, executionId string, startNodeId string, externalInput any, bag map[string]any) (*model.RunResult, error) {
	exec, err := e.store.GetExecution(ctx, executionId)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, model.NewExecutionNotFoundError(executionId)
	}
	if err != nil {
		return nil, err
	}
	f, err := e.loadFlow(ctx, exec.FlowId)
	if err != nil {
		return nil, err
	}
	exec.Status = model.RUNNING
	exec.Result = nil
	exec.FinishedAt = nil
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return nil, err
	}
	if bag == nil {
		bag = map[string]any{}
	}
	logger.Info("resuming flow", zap.String("flowId", f.Id), zap.String("executionId", exec.Id), zap.String("nodeId", startNodeId))
	e.emit(ctx, f.Scope(), analytics.EVENT_EXECUTION_STARTED, map[string]any{
		"executionId": exec.Id,
		"flowId":      f.Id,
		"resumedFrom": startNodeId,
	})
	return e.loop(ctx, f, exec, startNodeId, bag, externalInput)
}

func (e *Engine) loadFlow(ctx context.Context, flowId string) (*model.Flow, error) {
	f, err := e.flows.GetFlow(ctx, flowId)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, model.NewFlowNotFoundError(flowId)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// loop walks the flow from entry until it ends, suspends or fails.
func (e *Engine) loop(ctx context.Context, f *model.Flow, exec *model.Execution, entry string, bag map[string]any, input any) (*model.RunResult, error) {
	ctx, span := e.tracer.Start(ctx, "flow.run", trace.WithAttributes(
		attribute.String("flow.id", f.Id),
		attribute.String("execution.id", exec.Id),
		attribute.String("flow.entry", entry),
	))
	defer span.End()

	scope := f.Scope()
	index := f.Definition.NodeIndex()
	runCtx := &model.RunContext{
		ExecutionId: exec.Id,
		FlowId:      f.Id,
		WorkspaceId: scope,
		Bag:         bag,
	}

	current := entry
	lastOutput := input
	steps := 0
	for len(current) > 0 {
		if steps >= e.config.MaxSteps {
			return e.fail(ctx, span, scope, exec, model.NewStepLimitExceededError(e.config.MaxSteps))
		}
		steps++

		node, ok := index[current]
		if !ok {
			return e.fail(ctx, span, scope, exec, model.NewStepNotFoundError(current))
		}
		step, ok := e.registry.Get(node.Type)
		if !ok {
			return e.fail(ctx, span, scope, exec, model.NewUnregisteredStepTypeError(node.Type))
		}

		res, err := e.runNode(ctx, scope, exec, node, step, lastOutput, runCtx)
		if err != nil {
			return e.fail(ctx, span, scope, exec, err)
		}
		if res.Wait != nil {
			return e.suspend(ctx, span, f, exec, node, res, bag)
		}
		if res.Output != nil {
			bag[node.Id] = res.Output
			lastOutput = res.Output
		}
		current = flow.ResolveNext(node, f.Definition.Edges, res.Route, res.Next)
	}
	return e.finish(ctx, scope, exec, bag, lastOutput)
}

// PolicyFor merges engine defaults, step-type defaults and the node override.
func (e *Engine) PolicyFor(step action.Step, node model.Node) model.ResiliencePolicy {
	policy := e.config.DefaultPolicy
	if provider, ok := step.(action.PolicyProvider); ok {
		policy = policy.Merge(provider.DefaultPolicy())
	}
	return policy.Merge(node.Resilience)
}

func (e *Engine) runNode(ctx context.Context, scope string, exec *model.Execution, node model.Node, step action.Step, input any, runCtx *model.RunContext) (action.Result, error) {
	ctx, span := e.tracer.Start(ctx, "flow.node", trace.WithAttributes(
		attribute.String("node.id", node.Id),
		attribute.String("node.type", node.Type),
	))
	defer span.End()

	e.appendLog(ctx, exec.Id, model.LOG_INFO, fmt.Sprintf("running node %s", node.Id), map[string]any{"nodeId": node.Id, "type": node.Type})
	e.emit(ctx, scope, analytics.EVENT_NODE_STARTED, map[string]any{"executionId": exec.Id, "nodeId": node.Id, "type": node.Type})

	policy := e.PolicyFor(step, node)
	if err := e.breaker.Allow(ctx, scope, node.Id, policy); err != nil {
		e.nodeFailed(ctx, span, scope, exec, node, err)
		return action.Result{}, err
	}

	label := fmt.Sprintf("%s %s", node.Type, node.Id)
	start := e.now()
	res, err := resilience.Execute(ctx, policy, label, func(ctx context.Context) (action.Result, error) {
		return step.Execute(ctx, action.Request{Node: node, Input: input, Context: runCtx.Snapshot()})
	}, func(attempt int, err error) {
		e.appendLog(ctx, exec.Id, model.LOG_WARN, fmt.Sprintf("attempt %d of node %s failed", attempt, node.Id), map[string]any{
			"nodeId":  node.Id,
			"attempt": attempt,
			"error":   err.Error(),
		})
	})
	elapsed := e.now().Sub(start)

	// a cancelled caller says nothing about the health of the step
	if ctx.Err() == nil {
		e.sink.RecordStat(ctx, analytics.StatSample{
			Scope:      scope,
			NodeId:     node.Id,
			ServiceKey: node.Type,
			Duration:   elapsed,
			Success:    err == nil,
			At:         e.now(),
		})
		if rerr := e.breaker.Record(ctx, scope, node.Id, node.Type, policy, err == nil); rerr != nil {
			logger.Warn("error in updating breaker", zap.String("nodeId", node.Id), zap.Error(rerr))
		}
	}

	if err != nil {
		e.nodeFailed(ctx, span, scope, exec, node, err)
		return action.Result{}, err
	}
	e.emit(ctx, scope, analytics.EVENT_NODE_SUCCEEDED, map[string]any{
		"executionId": exec.Id,
		"nodeId":      node.Id,
		"ms":          elapsed.Milliseconds(),
	})
	return res, nil
}

func (e *Engine) nodeFailed(ctx context.Context, span trace.Span, scope string, exec *model.Execution, node model.Node, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.emit(ctx, scope, analytics.EVENT_NODE_FAILED, map[string]any{
		"executionId": exec.Id,
		"nodeId":      node.Id,
		"kind":        string(model.KindOf(err)),
		"error":       err.Error(),
	})
}

func (e *Engine) finish(ctx context.Context, scope string, exec *model.Execution, bag map[string]any, lastOutput any) (*model.RunResult, error) {
	finishedAt := e.now()
	exec.Status = model.SUCCESS
	exec.FinishedAt = &finishedAt
	exec.Result = map[string]any{"bag": bag, "lastOutput": lastOutput}
	ctx = context.WithoutCancel(ctx)
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return nil, err
	}
	logger.Info("flow finished", zap.String("flowId", exec.FlowId), zap.String("executionId", exec.Id))
	e.appendLog(ctx, exec.Id, model.LOG_INFO, "flow finished", nil)
	e.emit(ctx, scope, analytics.EVENT_EXECUTION_FINISHED, map[string]any{
		"executionId": exec.Id,
		"flowId":      exec.FlowId,
		"status":      string(model.SUCCESS),
	})
	return &model.RunResult{ExecutionId: exec.Id, Result: lastOutput, Bag: bag}, nil
}

func (e *Engine) fail(ctx context.Context, span trace.Span, scope string, exec *model.Execution, cause error) (*model.RunResult, error) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	finishedAt := e.now()
	exec.Status = model.FAILED
	exec.FinishedAt = &finishedAt
	exec.Result = map[string]any{"error": cause.Error(), "kind": string(model.KindOf(cause))}
	ctx = context.WithoutCancel(ctx)
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		logger.Error("error in marking execution failed", zap.String("executionId", exec.Id), zap.Error(err))
	}
	logger.Error("flow failed", zap.String("flowId", exec.FlowId), zap.String("executionId", exec.Id), zap.Error(cause))
	e.appendLog(ctx, exec.Id, model.LOG_ERROR, "flow failed", map[string]any{"error": cause.Error(), "kind": string(model.KindOf(cause))})
	e.emit(ctx, scope, analytics.EVENT_EXECUTION_FINISHED, map[string]any{
		"executionId": exec.Id,
		"flowId":      exec.FlowId,
		"status":      string(model.FAILED),
		"error":       cause.Error(),
	})
	return nil, cause
}

func (e *Engine) appendLog(ctx context.Context, executionId string, level model.LogLevel, message string, data map[string]any) {
	err := e.store.AppendLog(ctx, model.ExecutionLog{
		Id:          uuid.NewString(),
		ExecutionId: executionId,
		Level:       level,
		Message:     message,
		Data:        data,
		CreatedAt:   e.now(),
	})
	if err != nil {
		logger.Warn("error in appending execution log", zap.String("executionId", executionId), zap.Error(err))
	}
}

func (e *Engine) emit(ctx context.Context, scope string, name string, payload map[string]any) {
	e.sink.Emit(ctx, scope, name, payload)
}
