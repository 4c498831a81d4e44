package action

import (
	"context"
	"time"

	"github.com/mohitkumar/flowfirst/model"
)

var _ Step = new(delayAction)

type delayAction struct{}

func NewDelayAction() *delayAction {
	return &delayAction{}
}

func (d *delayAction) Label() string {
	return "Delay"
}

func (d *delayAction) Meta() map[string]any {
	return map[string]any{
		"description": "Waits config.ms milliseconds and passes its input through.",
		"example":     map[string]any{"ms": 1000},
	}
}

// DefaultPolicy disables the step timeout so long delays are not cut short.
func (d *delayAction) DefaultPolicy() *model.ResiliencePolicy {
	return &model.ResiliencePolicy{TimeoutMs: -1}
}

func (d *delayAction) Execute(ctx context.Context, req Request) (Result, error) {
	ms := toFloat(req.Node.Config["ms"])
	if ms > 0 {
		timer := time.NewTimer(time.Duration(ms * float64(time.Millisecond)))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return Result{Output: req.Input}, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	}
	return 0
}
