package engine

import (
	"context"

	"github.com/rendis/agentflow/internal/conditions"
	"github.com/rendis/agentflow/pkg/schema"
)

// ConditionHandler evaluates node.data.condition with the engine selected by
// node.data.conditionType (simple by default) and merges the boolean outcome
// into the context as "conditionResult". The walker, not this handler, uses
// that boolean to pick the outgoing edge.
//
// Evaluation failures, unknown engines, and missing conditions all resolve
// to false with a log entry; a condition node never aborts a run.
type ConditionHandler struct {
	engines *conditions.Engines
}

// NewConditionHandler creates a condition handler over the given engine set.
func NewConditionHandler(engines *conditions.Engines) *ConditionHandler {
	return &ConditionHandler{engines: engines}
}

func (h *ConditionHandler) Type() schema.NodeType { return schema.NodeTypeCondition }

func (h *ConditionHandler) Execute(ctx context.Context, node *schema.Node, execCtx Context, log RunLog) (Context, any, error) {
	result := h.evaluate(ctx, node, execCtx, log)
	return execCtx.With("conditionResult", result), result, nil
}

func (h *ConditionHandler) evaluate(ctx context.Context, node *schema.Node, execCtx Context, log RunLog) bool {
	expression := stringParam(node.Data, "condition", "")
	conditionType := stringParam(node.Data, "conditionType", "simple")

	if expression == "" {
		log.Log(ctx, schema.LogLevelWarning, "Condition node has no condition, defaulting to false", map[string]any{
			"nodeId": node.ID,
		})
		return false
	}

	engine, ok := h.engines.ForType(conditionType)
	if !ok {
		log.Log(ctx, schema.LogLevelWarning, "Unknown condition type, defaulting to false", map[string]any{
			"nodeId":        node.ID,
			"conditionType": conditionType,
		})
		return false
	}

	out, err := engine.Evaluate(ctx, expression, execCtx)
	if err != nil {
		log.Log(ctx, schema.LogLevelError, "Condition evaluation failed, defaulting to false", map[string]any{
			"nodeId":    node.ID,
			"condition": expression,
			"engine":    engine.Name(),
			"error":     err.Error(),
		})
		return false
	}

	b, ok := out.(bool)
	if !ok {
		log.Log(ctx, schema.LogLevelWarning, "Condition did not evaluate to a boolean, defaulting to false", map[string]any{
			"nodeId":    node.ID,
			"condition": expression,
			"engine":    engine.Name(),
		})
		return false
	}
	return b
}

var _ Handler = (*ConditionHandler)(nil)
