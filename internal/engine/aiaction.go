package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rendis/agentflow/internal/capabilities"
	"github.com/rendis/agentflow/pkg/schema"
)

// defaultAIResponseKey is where an ai_action node merges its output block.
const defaultAIResponseKey = "aiResponse"

// AIActionHandler calls the injected text-generation capability with
// node.data.{prompt, model, systemPrompt}. An ai_action node always
// completes: when no provider is configured or the call fails, the handler
// falls back to a deterministic simulated output instead of failing.
type AIActionHandler struct {
	generator capabilities.TextGenerator
}

// NewAIActionHandler creates an ai_action handler. generator may be nil,
// which behaves like an unconfigured provider.
func NewAIActionHandler(generator capabilities.TextGenerator) *AIActionHandler {
	return &AIActionHandler{generator: generator}
}

func (h *AIActionHandler) Type() schema.NodeType { return schema.NodeTypeAIAction }

func (h *AIActionHandler) Execute(ctx context.Context, node *schema.Node, execCtx Context, log RunLog) (Context, any, error) {
	prompt := stringParam(node.Data, "prompt", "")
	model := stringParam(node.Data, "model", "")
	systemPrompt := stringParam(node.Data, "systemPrompt", "")

	engine := "generation"
	var output string
	var genErr error

	if h.generator == nil {
		genErr = capabilities.ErrGeneratorUnconfigured
	} else {
		output, genErr = h.generator.Generate(ctx, capabilities.GenerationRequest{
			Model:        model,
			Prompt:       prompt,
			SystemPrompt: systemPrompt,
		})
	}

	switch {
	case genErr == nil:
		// Real output.
	case errors.Is(genErr, capabilities.ErrGeneratorUnconfigured):
		engine = "simulation"
		output = fmt.Sprintf("[simulated output, no generation provider configured] %s", prompt)
		log.Log(ctx, schema.LogLevelWarning, "No generation provider configured, using simulated output", map[string]any{
			"nodeId": node.ID,
		})
	default:
		engine = "simulation"
		output = fmt.Sprintf("[simulated output, generation provider failed] %s", prompt)
		log.Log(ctx, schema.LogLevelError, "Generation call failed, using simulated output", map[string]any{
			"nodeId": node.ID,
			"error":  genErr.Error(),
		})
	}

	result := map[string]any{
		"engine":       engine,
		"model":        model,
		"inputPrompt":  prompt,
		"systemPrompt": systemPrompt,
		"output":       output,
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
	}

	responseKey := stringParam(node.Data, "responseKey", defaultAIResponseKey)
	return execCtx.With(responseKey, result), result, nil
}

var _ Handler = (*AIActionHandler)(nil)
