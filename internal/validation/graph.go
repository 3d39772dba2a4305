package validation

import (
	"github.com/rendis/agentflow/pkg/schema"
)

// Graph performs the structural checks a run depends on: non-empty node set,
// unique node IDs, edges referencing only existing nodes, and exactly one
// trigger-family node.
func Graph(g *schema.Graph) error {
	if g == nil || len(g.Nodes) == 0 {
		return schema.NewError(schema.ErrCodeMalformedGraph, "graph has no nodes")
	}

	ids := make(map[string]bool, len(g.Nodes))
	triggers := 0
	for i := range g.Nodes {
		node := &g.Nodes[i]
		if node.ID == "" {
			return schema.NewError(schema.ErrCodeMalformedGraph, "node has empty id")
		}
		if ids[node.ID] {
			return schema.NewErrorf(schema.ErrCodeMalformedGraph, "duplicate node id %q", node.ID).WithNode(node.ID)
		}
		ids[node.ID] = true
		if node.Type.IsTrigger() {
			triggers++
		}
	}

	switch {
	case triggers == 0:
		return schema.NewError(schema.ErrCodeNoTriggerFound, "graph has no trigger node")
	case triggers > 1:
		return schema.NewErrorf(schema.ErrCodeMalformedGraph, "graph has %d trigger nodes, want exactly one", triggers)
	}

	for _, e := range g.Edges {
		if !ids[e.Source] {
			return schema.NewErrorf(schema.ErrCodeMalformedGraph, "edge %q references unknown source node %q", e.ID, e.Source)
		}
		if !ids[e.Target] {
			return schema.NewErrorf(schema.ErrCodeMalformedGraph, "edge %q references unknown target node %q", e.ID, e.Target)
		}
	}

	return nil
}
