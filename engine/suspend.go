package engine

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/mohae/deepcopy"
	"github.com/mohitkumar/flowfirst/action"
	"github.com/mohitkumar/flowfirst/analytics"
	"github.com/mohitkumar/flowfirst/flow"
	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// NewToken returns 32 random bytes, base64url encoded without padding.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// suspend persists a wait token holding a snapshot of the bag and parks the
// execution in WAITING.
func (e *Engine) suspend(ctx context.Context, span trace.Span, f *model.Flow, exec *model.Execution, node model.Node, res action.Result, bag map[string]any) (*model.RunResult, error) {
	scope := f.Scope()
	token, err := NewToken()
	if err != nil {
		return e.fail(ctx, span, scope, exec, err)
	}
	resumeNext := res.Wait.ResumeNext
	if len(resumeNext) == 0 {
		resumeNext = flow.ResolveNext(node, f.Definition.Edges, res.Route, res.Next)
	}
	fields := res.Wait.Payload
	if fields == nil {
		fields = map[string]any{}
	}
	wt := &model.WaitToken{
		Token:       token,
		ExecutionId: exec.Id,
		NodeId:      node.Id,
		ResumeNext:  resumeNext,
		Fields:      fields,
		ContextBag:  deepcopy.Copy(bag).(map[string]any),
		CreatedAt:   e.now(),
	}
	if err := e.store.CreateWaitToken(ctx, wt); err != nil {
		return e.fail(ctx, span, scope, exec, err)
	}
	exec.Status = model.WAITING
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return e.fail(ctx, span, scope, exec, err)
	}

	publicUrl := strings.TrimSuffix(e.config.PublicBaseURL, "/") + "/public/" + token
	logger.Info("flow waiting for input", zap.String("executionId", exec.Id), zap.String("nodeId", node.Id), zap.String("resumeNext", resumeNext))
	e.appendLog(ctx, exec.Id, model.LOG_INFO, "execution paused waiting for input", map[string]any{
		"nodeId":     node.Id,
		"token":      token,
		"resumeNext": resumeNext,
	})
	e.emit(ctx, scope, analytics.EVENT_EXECUTION_WAITING, map[string]any{
		"executionId": exec.Id,
		"nodeId":      node.Id,
		"token":       token,
		"resumeNext":  resumeNext,
	})
	return &model.RunResult{
		ExecutionId: exec.Id,
		Waiting: &model.Waiting{
			Token:      token,
			PublicUrl:  publicUrl,
			ResumeNext: resumeNext,
		},
	}, nil
}
