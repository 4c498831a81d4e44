package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
	"github.com/mohitkumar/flowfirst/logger"
	"github.com/mohitkumar/flowfirst/model"
	"go.uber.org/zap"
)

var _ Step = new(jsAction)
var _ SaveHook = new(jsAction)

// jsAction runs config.script with $ bound to {input, bag}. The script
// returns by setting $.output (or by rewriting $) and may pick a route
// through $.route.
type jsAction struct{}

func NewJsAction() *jsAction {
	return &jsAction{}
}

func (d *jsAction) Label() string {
	return "JavaScript"
}

func (d *jsAction) Meta() map[string]any {
	return map[string]any{
		"description": "Runs a script with $ = { input, bag }; $.output is the result and $.route picks the edge.",
		"example":     map[string]any{"script": "$.output = { total: $.input.a + $.input.b }"},
	}
}

func (d *jsAction) OnSave(ctx context.Context, flowId string, node *model.Node) error {
	script, _ := node.Config["script"].(string)
	if len(script) == 0 {
		return model.NewInvalidFlowError("node %s: script can not be empty", node.Id)
	}
	if _, err := goja.Compile(node.Id, script, false); err != nil {
		return model.NewInvalidFlowError("node %s: script does not compile: %v", node.Id, err)
	}
	return nil
}

func (d *jsAction) Execute(ctx context.Context, req Request) (Result, error) {
	script, _ := req.Node.Config["script"].(string)
	if len(script) == 0 {
		return Result{}, fmt.Errorf("node %s (javascript) has no script", req.Node.Id)
	}
	data, err := json.Marshal(templateData(req))
	if err != nil {
		return Result{}, err
	}
	expression := fmt.Sprintf("var $ = %s;\n", data) + script

	vm := goja.New()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	logger.Debug("running script", zap.String("nodeId", req.Node.Id))
	if _, err := vm.RunString(expression); err != nil {
		return Result{}, fmt.Errorf("error executing javascript: %w", err)
	}
	val, err := vm.RunString("$")
	if err != nil {
		return Result{}, fmt.Errorf("error executing javascript: %w", err)
	}
	res, err := json.Marshal(val.Export())
	if err != nil {
		return Result{}, err
	}
	var scope any
	if err := json.Unmarshal(res, &scope); err != nil {
		return Result{}, err
	}

	obj, ok := scope.(map[string]any)
	if !ok {
		return Result{Output: scope}, nil
	}
	result := Result{Output: obj}
	if out, ok := obj["output"]; ok {
		result.Output = out
	}
	if route, ok := obj["route"].(string); ok {
		result.Route = route
	}
	return result, nil
}
