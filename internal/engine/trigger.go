package engine

import (
	"context"
	"time"

	"github.com/rendis/agentflow/pkg/schema"
)

// TriggerHandler starts a run: it stamps the trigger metadata into the
// context. One instance is registered per trigger-family type. Never fails.
type TriggerHandler struct {
	typ schema.NodeType
}

// NewTriggerHandler creates a handler for one trigger-family node type.
func NewTriggerHandler(typ schema.NodeType) *TriggerHandler {
	return &TriggerHandler{typ: typ}
}

func (h *TriggerHandler) Type() schema.NodeType { return h.typ }

func (h *TriggerHandler) Execute(ctx context.Context, node *schema.Node, execCtx Context, log RunLog) (Context, any, error) {
	stamp := map[string]any{
		"triggeredAt": time.Now().UTC().Format(time.RFC3339Nano),
		"triggerType": string(node.Type),
		"triggerData": node.Data,
	}
	return execCtx.Merge(stamp), stamp, nil
}

var _ Handler = (*TriggerHandler)(nil)
