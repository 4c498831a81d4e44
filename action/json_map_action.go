package action

import (
	"context"

	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/util"
)

var _ Step = new(jsonMapAction)

type jsonMapAction struct{}

func NewJsonMapAction() *jsonMapAction {
	return &jsonMapAction{}
}

func (j *jsonMapAction) Label() string {
	return "JSON Mapper"
}

func (j *jsonMapAction) Meta() map[string]any {
	return map[string]any{
		"description": "Builds an object from config.mapping, resolving {$.path} templates against { input, bag }.",
		"example":     map[string]any{"mapping": map[string]any{"name": "{$.input.user.name}", "status": "{$.bag.call.status}"}},
	}
}

func (j *jsonMapAction) OnSave(ctx context.Context, flowId string, node *model.Node) error {
	if _, ok := node.Config["mapping"].(map[string]any); !ok {
		return model.NewInvalidFlowError("node %s: jsonmapper needs a mapping object", node.Id)
	}
	return nil
}

func (j *jsonMapAction) Execute(ctx context.Context, req Request) (Result, error) {
	mapping, _ := req.Node.Config["mapping"].(map[string]any)
	return Result{Output: util.ResolveParams(templateData(req), mapping)}, nil
}
