package action

import (
	"context"
	"reflect"

	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/util"
)

var _ Step = new(decisionAction)
var _ SaveHook = new(decisionAction)

var validOps = map[string]bool{"eq": true, "neq": true, "gt": true, "lt": true, "gte": true, "lte": true}

type condition struct {
	Path  string `json:"path"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

type rule struct {
	When  condition `json:"when"`
	Route string    `json:"route"`
	Next  string    `json:"next"`
}

type decisionConfig struct {
	Rules        []rule  `json:"rules"`
	DefaultRoute *string `json:"defaultRoute"`
	Source       string  `json:"source"`
	BagKey       string  `json:"bagKey"`
}

// decisionAction evaluates rules in order against the last output (or the
// bag) and routes on the first match.
type decisionAction struct{}

func NewDecisionAction() *decisionAction {
	return &decisionAction{}
}

func (d *decisionAction) Label() string {
	return "Decision"
}

func (d *decisionAction) Meta() map[string]any {
	return map[string]any{
		"description": "Conditional evaluator with named routes (e.g. approved/denied).",
		"outputs":     []string{"{ matched: rule | null }"},
		"example": map[string]any{
			"rules": []any{
				map[string]any{"when": map[string]any{"path": "status", "op": "eq", "value": 200}, "route": "approved"},
				map[string]any{"when": map[string]any{"path": "status", "op": "eq", "value": 400}, "route": "denied"},
			},
			"defaultRoute": "default",
		},
	}
}

func (d *decisionAction) OnSave(ctx context.Context, flowId string, node *model.Node) error {
	cfg, err := decodeConfig[decisionConfig](node.Config)
	if err != nil {
		return model.NewInvalidFlowError("node %s: invalid decision config: %v", node.Id, err)
	}
	if len(cfg.Rules) == 0 {
		return model.NewInvalidFlowError("node %s: decision needs at least one rule", node.Id)
	}
	for i, r := range cfg.Rules {
		if len(r.When.Path) == 0 {
			return model.NewInvalidFlowError("node %s: rule %d has no path", node.Id, i)
		}
		if !validOps[r.When.Op] {
			return model.NewInvalidFlowError("node %s: rule %d has unknown op %q", node.Id, i, r.When.Op)
		}
	}
	if cfg.Source != "" && cfg.Source != "lastOutput" && cfg.Source != "bag" {
		return model.NewInvalidFlowError("node %s: unknown decision source %q", node.Id, cfg.Source)
	}
	return nil
}

func (d *decisionAction) Execute(ctx context.Context, req Request) (Result, error) {
	cfg, err := decodeConfig[decisionConfig](req.Node.Config)
	if err != nil {
		return Result{}, err
	}
	var source any = req.Input
	if cfg.Source == "bag" && req.Context != nil {
		if len(cfg.BagKey) > 0 {
			source = req.Context.Bag[cfg.BagKey]
		} else {
			source = req.Context.Bag
		}
	}
	source = normalize(source)

	var rawRules []any
	if rs, ok := req.Node.Config["rules"].([]any); ok {
		rawRules = rs
	}
	for i, r := range cfg.Rules {
		left, err := util.LookupPath(source, r.When.Path)
		if err != nil {
			left = nil
		}
		if !compare(r.When.Op, left, normalize(r.When.Value)) {
			continue
		}
		var matched any = r
		if i < len(rawRules) {
			matched = rawRules[i]
		}
		return Result{Output: map[string]any{"matched": matched}, Route: r.Route, Next: r.Next}, nil
	}

	route := model.DEFAULT_ROUTE
	if cfg.DefaultRoute != nil {
		route = *cfg.DefaultRoute
	}
	return Result{Output: map[string]any{"matched": nil}, Route: route}, nil
}

func compare(op string, a any, b any) bool {
	switch op {
	case "eq":
		return reflect.DeepEqual(a, b)
	case "neq":
		return !reflect.DeepEqual(a, b)
	}
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch op {
		case "gt":
			return af > bf
		case "lt":
			return af < bf
		case "gte":
			return af >= bf
		case "lte":
			return af <= bf
		}
		return false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case "gt":
			return as > bs
		case "lt":
			return as < bs
		case "gte":
			return as >= bs
		case "lte":
			return as <= bs
		}
	}
	return false
}
