package flow

import (
	"fmt"
	"os"

	"github.com/mohitkumar/flowfirst/model"
	"github.com/mohitkumar/flowfirst/util"
)

// Validate checks the structure of a definition: a start node that exists,
// unique non-empty node ids, typed nodes, and transitions that point at
// existing nodes. knownType, when set, is asked about every node type.
func Validate(def model.FlowDefinition, knownType func(string) bool) error {
	if len(def.Nodes) == 0 {
		return model.NewInvalidFlowError("flow has no nodes")
	}
	ids := make(map[string]struct{}, len(def.Nodes))
	for _, n := range def.Nodes {
		if len(n.Id) == 0 {
			return model.NewInvalidFlowError("node without id")
		}
		if _, ok := ids[n.Id]; ok {
			return model.NewInvalidFlowError("duplicate node id %s", n.Id)
		}
		ids[n.Id] = struct{}{}
		if len(n.Type) == 0 {
			return model.NewInvalidFlowError("node %s has no type", n.Id)
		}
		if knownType != nil && !knownType(n.Type) {
			return model.NewInvalidFlowError("node %s has unregistered type %s", n.Id, n.Type)
		}
	}
	if _, ok := ids[def.Start]; !ok {
		return model.NewInvalidFlowError("start node %q does not exist", def.Start)
	}
	for _, n := range def.Nodes {
		if len(n.Next) > 0 {
			if _, ok := ids[n.Next]; !ok {
				return model.NewInvalidFlowError("node %s points to unknown node %s", n.Id, n.Next)
			}
		}
	}
	for _, e := range def.Edges {
		if _, ok := ids[e.From]; !ok {
			return model.NewInvalidFlowError("edge from unknown node %s", e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return model.NewInvalidFlowError("edge %s -> %s targets unknown node", e.From, e.To)
		}
	}
	return nil
}

// LoadDefinitionFile reads a flow from a YAML (or JSON, which is valid YAML) file.
func LoadDefinitionFile(path string) (*model.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	flow, err := util.NewYamlEncoderDecoder[model.Flow]().Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse flow file %s: %w", path, err)
	}
	return flow, nil
}
