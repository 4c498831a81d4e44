package flow

import "github.com/mohitkumar/flowfirst/model"

// ResolveNext picks the node that follows node. Outgoing edges win over the
// legacy next field: an edge matching route first, then the default edge, then
// the first declared edge. Without edges it falls back to fallbackNext, then
// node.Next. An empty result means the flow ends here.
func ResolveNext(node model.Node, edges []model.Edge, route string, fallbackNext string) string {
	var outgoing []model.Edge
	for _, e := range edges {
		if e.From == node.Id {
			outgoing = append(outgoing, e)
		}
	}
	if len(outgoing) == 0 {
		if len(fallbackNext) > 0 {
			return fallbackNext
		}
		return node.Next
	}
	if len(route) > 0 {
		for _, e := range outgoing {
			if e.Route() == route {
				return e.To
			}
		}
	}
	for _, e := range outgoing {
		if e.Route() == model.DEFAULT_ROUTE {
			return e.To
		}
	}
	return outgoing[0].To
}
