package action

import (
	"context"

	"github.com/mohitkumar/flowfirst/model"
)

var _ Step = new(formAction)

type formConfig struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Fields      []any  `json:"fields"`
	ResumeNext  string `json:"resumeNext"`
}

// formAction suspends the run and hands the form description to whoever
// opens the public link.
type formAction struct{}

func NewFormAction() *formAction {
	return &formAction{}
}

func (f *formAction) Label() string {
	return "Form"
}

func (f *formAction) Meta() map[string]any {
	return map[string]any{
		"description": "Pauses the flow until the public form is submitted.",
		"example":     map[string]any{"title": "Approval", "fields": []string{"approved", "comment"}},
	}
}

func (f *formAction) OnSave(ctx context.Context, flowId string, node *model.Node) error {
	if _, err := decodeConfig[formConfig](node.Config); err != nil {
		return model.NewInvalidFlowError("node %s: invalid form config: %v", node.Id, err)
	}
	return nil
}

func (f *formAction) Execute(ctx context.Context, req Request) (Result, error) {
	cfg, err := decodeConfig[formConfig](req.Node.Config)
	if err != nil {
		return Result{}, err
	}
	fields := cfg.Fields
	if fields == nil {
		fields = []any{}
	}
	return Result{Wait: &WaitRequest{
		Payload: map[string]any{
			"title":       cfg.Title,
			"description": cfg.Description,
			"fields":      fields,
		},
		ResumeNext: cfg.ResumeNext,
	}}, nil
}
