package capabilities

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/agentflow/pkg/schema"
)

func TestOpenAIGenerator_MissingKeyIsUnconfigured(t *testing.T) {
	g := NewOpenAIGenerator(GeneratorConfig{})

	_, err := g.Generate(context.Background(), GenerationRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneratorUnconfigured))
}

func TestOpenAIGenerator_ChatCompletion(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "generated text"}}]}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(GeneratorConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	out, err := g.Generate(context.Background(), GenerationRequest{
		Prompt:       "summarize this",
		SystemPrompt: "be brief",
	})
	require.NoError(t, err)

	assert.Equal(t, "generated text", out)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, defaultGenerationModel, gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "be brief", gotReq.Messages[0].Content)
	assert.Equal(t, "summarize this", gotReq.Messages[1].Content)
}

func TestOpenAIGenerator_RequestModelOverridesDefault(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(GeneratorConfig{BaseURL: srv.URL, APIKey: "sk-test", DefaultModel: "base"})
	_, err := g.Generate(context.Background(), GenerationRequest{Model: "special", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "special", gotReq.Model)
}

func TestOpenAIGenerator_ProviderErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(GeneratorConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	_, err := g.Generate(context.Background(), GenerationRequest{Prompt: "hi"})
	require.Error(t, err)

	fe, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeGeneration, fe.Code)
	assert.Contains(t, fe.Message, "rate limited")
	assert.False(t, errors.Is(err, ErrGeneratorUnconfigured))
}

func TestOpenAIGenerator_EmptyChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(GeneratorConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	_, err := g.Generate(context.Background(), GenerationRequest{Prompt: "hi"})
	assert.Error(t, err)
}
