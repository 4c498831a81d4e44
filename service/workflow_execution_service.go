package service

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/flowfirst/engine"
	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/persistence"
	"github.com/mohitkumar/flowfirst/util"
	"go.uber.org/zap"
)

const DEFAULT_FORM_TITLE = "Form"

// WebhookCache is told when the webhook list of a workspace changes.
type WebhookCache interface {
	Invalidate(scope string)
}

type ExecutionView struct {
	Execution *model.Execution     `json:"execution"`
	Logs      []model.ExecutionLog `json:"logs"`
}

type WorkspaceMetrics struct {
	Stats  []model.ServiceStat   `json:"stats"`
	Health []model.ServiceHealth `json:"health"`
}

type ResumeResult struct {
	Resumed bool             `json:"resumed"`
	Result  *model.RunResult `json:"result"`
}

type WorkflowExecutionService struct {
	engine   *engine.Engine
	storage  persistence.Storage
	webhooks WebhookCache
	locks    *util.KeyedMutex
	now      func() time.Time
}

func NewWorkflowExecutionService(e *engine.Engine, storage persistence.Storage, webhooks WebhookCache) *WorkflowExecutionService {
	return &WorkflowExecutionService{
		engine:   e,
		storage:  storage,
		webhooks: webhooks,
		locks:    util.NewKeyedMutex(),
		now:      time.Now,
	}
}

// RunFlow runs the flow to completion or suspension. The run is detached from
// ctx cancellation; a caller going away does not cut it short.
func (s *WorkflowExecutionService) RunFlow(ctx context.Context, flowId string, input map[string]any) (*model.RunResult, error) {
	ctx = context.WithoutCancel(ctx)
	if input == nil {
		input = map[string]any{}
	}
	logger.Info("running workflow", zap.String("flowId", flowId))
	return s.engine.Run(ctx, flowId, input)
}

func (s *WorkflowExecutionService) getToken(ctx context.Context, token string) (*model.WaitToken, error) {
	wt, err := s.storage.GetWaitToken(ctx, token)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, model.NewTokenNotFoundError(token)
	}
	if err != nil {
		return nil, err
	}
	if wt.Consumed() {
		return nil, model.NewTokenAlreadyConsumedError(token)
	}
	return wt, nil
}

// ResumeFlow continues the execution parked behind token with data as the
// input of its resume node. The token is consumed only after the engine
// accepted the resume, so a resume that fails can be submitted again. Like
// RunFlow it ignores cancellation of ctx.
func (s *WorkflowExecutionService) ResumeFlow(ctx context.Context, token string, data map[string]any) (*ResumeResult, error) {
	ctx = context.WithoutCancel(ctx)
	unlock := s.locks.Lock(token)
	defer unlock()

	wt, err := s.getToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	logger.Info("resuming workflow", zap.String("executionId", wt.ExecutionId), zap.String("nodeId", wt.ResumeNext))
	res, err := s.engine.Resume(ctx, wt.ExecutionId, wt.ResumeNext, data, wt.ContextBag)
	if err != nil {
		return nil, err
	}
	if err := s.storage.ConsumeWaitToken(ctx, token, s.now()); err != nil {
		return nil, err
	}
	return &ResumeResult{Resumed: true, Result: res}, nil
}

func (s *WorkflowExecutionService) GetWaitForm(ctx context.Context, token string) (*model.WaitForm, error) {
	wt, err := s.getToken(ctx, token)
	if err != nil {
		return nil, err
	}
	form := &model.WaitForm{
		Token:       wt.Token,
		ExecutionId: wt.ExecutionId,
		Title:       DEFAULT_FORM_TITLE,
		Fields:      []any{},
	}
	if title, ok := wt.Fields["title"].(string); ok && len(title) > 0 {
		form.Title = title
	}
	if description, ok := wt.Fields["description"].(string); ok {
		form.Description = description
	}
	if fields, ok := wt.Fields["fields"].([]any); ok {
		form.Fields = fields
	}
	return form, nil
}

func (s *WorkflowExecutionService) GetExecution(ctx context.Context, id string) (*ExecutionView, error) {
	exec, err := s.storage.GetExecution(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, model.NewExecutionNotFoundError(id)
	}
	if err != nil {
		return nil, err
	}
	logs, err := s.storage.GetLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ExecutionView{Execution: exec, Logs: logs}, nil
}

func (s *WorkflowExecutionService) WorkspaceMetrics(ctx context.Context, workspaceId string) (*WorkspaceMetrics, error) {
	stats, err := s.storage.ListServiceStats(ctx, workspaceId)
	if err != nil {
		return nil, err
	}
	health, err := s.storage.ListServiceHealth(ctx, workspaceId)
	if err != nil {
		return nil, err
	}
	return &WorkspaceMetrics{Stats: stats, Health: health}, nil
}

func (s *WorkflowExecutionService) AddWebhook(ctx context.Context, workspaceId string, hookUrl string, secret string) (*model.EventWebhook, error) {
	u, err := url.Parse(hookUrl)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || len(u.Host) == 0 {
		return nil, model.NewInvalidRequestError("webhook url %q is not an http(s) url", hookUrl)
	}
	hook := model.EventWebhook{
		Id:          uuid.NewString(),
		WorkspaceId: workspaceId,
		Url:         hookUrl,
		Secret:      secret,
		Active:      true,
		CreatedAt:   s.now(),
	}
	if err := s.storage.CreateWebhook(ctx, hook); err != nil {
		return nil, err
	}
	if s.webhooks != nil {
		s.webhooks.Invalidate(workspaceId)
	}
	logger.Info("webhook registered", zap.String("workspaceId", workspaceId), zap.String("url", hookUrl))
	return &hook, nil
}

func (s *WorkflowExecutionService) ListWebhooks(ctx context.Context, workspaceId string) ([]model.EventWebhook, error) {
	return s.storage.ListWebhooks(ctx, workspaceId)
}
