package engine

import (
	"context"
	"time"

	"github.com/rendis/agentflow/pkg/schema"
)

// maxDelay caps node.data.duration so a misconfigured node cannot park a
// run for hours.
const maxDelay = 5 * time.Minute

// DelayHandler pauses the path for node.data.duration (a Go duration
// string), honoring context cancellation.
type DelayHandler struct{}

// NewDelayHandler creates a delay handler.
func NewDelayHandler() *DelayHandler {
	return &DelayHandler{}
}

func (h *DelayHandler) Type() schema.NodeType { return schema.NodeTypeDelay }

func (h *DelayHandler) Execute(ctx context.Context, node *schema.Node, execCtx Context, log RunLog) (Context, any, error) {
	raw := stringParam(node.Data, "duration", "")
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.Log(ctx, schema.LogLevelWarning, "Delay node has invalid duration, skipping delay", map[string]any{
			"nodeId":   node.ID,
			"duration": raw,
		})
		return execCtx, nil, nil
	}
	if d > maxDelay {
		d = maxDelay
	}

	start := time.Now()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, nil, schema.NewErrorf(schema.ErrCodeCancelled, "delay interrupted: %v", ctx.Err()).
			WithNode(node.ID).WithCause(ctx.Err())
	}

	result := map[string]any{"delayedMs": time.Since(start).Milliseconds()}
	return execCtx.With("delayedMs", result["delayedMs"]), result, nil
}

var _ Handler = (*DelayHandler)(nil)
