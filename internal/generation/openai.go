package generation

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGenerator answers prompts with the OpenAI chat completions API or a
// compatible endpoint.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIGenerator creates a generator for model. baseURL may be empty for
// the public API.
func NewOpenAIGenerator(apiKey, baseURL, model string, temperature float32) (*OpenAIGenerator, error) {
	if apiKey == "" && baseURL == "" {
		return nil, errors.New("openai generator: API key not set")
	}
	if model == "" {
		return nil, errors.New("openai generator: model not set")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
	}, nil
}

// Generate sends prompt as a single user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", &BackendError{Model: g.ModelID(), Op: "generate", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &BackendError{Model: g.ModelID(), Op: "generate", Err: errors.New("no choices in response")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ModelID names the backend and model.
func (g *OpenAIGenerator) ModelID() string { return "openai-" + g.model }

// Close is a no-op.
func (g *OpenAIGenerator) Close() error { return nil }
