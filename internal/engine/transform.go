package engine

import (
	"context"

	"github.com/rendis/agentflow/internal/conditions"
	"github.com/rendis/agentflow/pkg/schema"
)

// TransformHandler applies the jq expression in node.data.expression to the
// context and merges the result under node.data.outputKey (default
// "transformed"). Evaluation failures are non-fatal: logged, context
// unchanged.
type TransformHandler struct {
	jq *conditions.GoJQEngine
}

// NewTransformHandler creates a transform handler over the given jq engine.
func NewTransformHandler(jq *conditions.GoJQEngine) *TransformHandler {
	return &TransformHandler{jq: jq}
}

func (h *TransformHandler) Type() schema.NodeType { return schema.NodeTypeTransform }

func (h *TransformHandler) Execute(ctx context.Context, node *schema.Node, execCtx Context, log RunLog) (Context, any, error) {
	expression := stringParam(node.Data, "expression", "")
	if expression == "" {
		log.Log(ctx, schema.LogLevelWarning, "Transform node has no expression, passing context through", map[string]any{
			"nodeId": node.ID,
		})
		return execCtx, nil, nil
	}

	out, err := h.jq.Evaluate(ctx, expression, execCtx)
	if err != nil {
		log.Log(ctx, schema.LogLevelError, "Transform failed, passing context through", map[string]any{
			"nodeId":     node.ID,
			"expression": expression,
			"error":      err.Error(),
		})
		return execCtx, nil, nil
	}

	outputKey := stringParam(node.Data, "outputKey", "transformed")
	return execCtx.With(outputKey, out), out, nil
}

var _ Handler = (*TransformHandler)(nil)
