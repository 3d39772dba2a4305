package schema

// Graph is the JSON-serializable workflow format: a set of typed nodes
// connected by directed edges. Callers provide it fully built; it is
// immutable once a run starts.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a typed unit of work within a graph.
type Node struct {
	ID    string         `json:"id"`
	Type  NodeType       `json:"type"`
	Label string         `json:"label,omitempty"`
	Data  map[string]any `json:"data,omitempty"` // type-specific parameters
}

// Edge is a directed dependency between two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// NodeType enumerates the kinds of nodes in a graph.
type NodeType string

const (
	NodeTypeTrigger         NodeType = "trigger"
	NodeTypeWebhookTrigger  NodeType = "webhook_trigger"
	NodeTypeScheduleTrigger NodeType = "schedule_trigger"
	NodeTypeAPICall         NodeType = "api_call"
	NodeTypeCondition       NodeType = "condition"
	NodeTypeAIAction        NodeType = "ai_action"
	NodeTypeTransform       NodeType = "transform"
	NodeTypeDelay           NodeType = "delay"
)

// IsTrigger reports whether the node type belongs to the trigger family.
// Each graph must contain exactly one trigger-family node.
func (t NodeType) IsTrigger() bool {
	switch t {
	case NodeTypeTrigger, NodeTypeWebhookTrigger, NodeTypeScheduleTrigger:
		return true
	}
	return false
}

// NodeByID returns the node with the given ID, or nil if absent.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// TriggerNode returns the first trigger-family node, or nil if absent.
func (g *Graph) TriggerNode() *Node {
	for i := range g.Nodes {
		if g.Nodes[i].Type.IsTrigger() {
			return &g.Nodes[i]
		}
	}
	return nil
}

// OutgoingEdges returns the edges whose source is the given node, in
// definition order. For condition nodes the order is positional:
// edges[0] is the true branch, edges[1] the false branch.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}
