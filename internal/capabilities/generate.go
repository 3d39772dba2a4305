package capabilities

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/agentflow/pkg/schema"
)

// ErrGeneratorUnconfigured signals that no generation provider is available
// (no API key). Handlers distinguish this from a call failure when choosing
// their fallback output.
var ErrGeneratorUnconfigured = errors.New("text generator not configured")

// GenerationRequest describes a single text-generation call.
type GenerationRequest struct {
	Model        string
	Prompt       string
	SystemPrompt string
}

// TextGenerator is the capability interface ai_action handlers depend on.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GeneratorConfig configures the OpenAI-compatible generator.
type GeneratorConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
}

const (
	defaultGenerationBaseURL = "https://api.openai.com/v1"
	defaultGenerationModel   = "gpt-4o-mini"
	defaultGenerationTimeout = 60 * time.Second
)

// OpenAIGenerator calls an OpenAI-compatible chat-completions endpoint.
type OpenAIGenerator struct {
	config GeneratorConfig
	client *http.Client
}

// NewOpenAIGenerator creates a generator. A missing API key is not an error
// here; Generate reports ErrGeneratorUnconfigured so callers can fall back.
func NewOpenAIGenerator(cfg GeneratorConfig) *OpenAIGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGenerationBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultGenerationModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGenerationTimeout
	}
	return &OpenAIGenerator{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate performs the chat-completions call.
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if g.config.APIKey == "" {
		return "", ErrGeneratorUnconfigured
	}

	model := req.Model
	if model == "" {
		model = g.config.DefaultModel
	}

	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeGeneration, "marshal generation request: %s", err.Error()).WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(g.config.BaseURL, "/")+"/chat/completions",
		strings.NewReader(string(payload)))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeGeneration, "create generation request: %s", err.Error()).WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.config.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeGeneration, "generation call failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeGeneration, "read generation response: %s", err.Error()).WithCause(err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeGeneration, "decode generation response: %s", err.Error()).WithCause(err)
	}
	if resp.StatusCode >= 400 {
		msg := resp.Status
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", schema.NewErrorf(schema.ErrCodeGeneration, "generation provider error: %s", msg)
	}
	if len(parsed.Choices) == 0 {
		return "", schema.NewError(schema.ErrCodeGeneration, "generation response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

var _ TextGenerator = (*OpenAIGenerator)(nil)
