package action

import (
	"context"

	"github.com/mohitkumar/flowfirst/model"
)

var _ Step = new(helloAction)
var _ CreateHook = new(helloAction)

type helloAction struct{}

func NewHelloAction() *helloAction {
	return &helloAction{}
}

func (h *helloAction) Label() string {
	return "Hello"
}

func (h *helloAction) Meta() map[string]any {
	return map[string]any{
		"description": "Echoes its input and config.",
		"outputs":     []string{"{ echo: any, config: object }"},
	}
}

func (h *helloAction) OnCreate(ctx context.Context, flowId string, node *model.Node) error {
	if node.Config == nil {
		node.Config = map[string]any{}
	}
	return nil
}

func (h *helloAction) Execute(ctx context.Context, req Request) (Result, error) {
	return Result{Output: map[string]any{"echo": req.Input, "config": req.Node.Config}}, nil
}
