package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/docent/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
)

// knownOpenAIDimensions lists output sizes of OpenAI embedding models.
var knownOpenAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder embeds text through the OpenAI embeddings API or any
// compatible endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string

	mu  sync.Mutex
	dim int
}

// NewOpenAIEmbedder creates an embedder for model. baseURL may be empty for
// the public API. dimensions may be zero, in which case it is taken from the
// known model table or from the first response.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) (*OpenAIEmbedder, error) {
	if apiKey == "" && baseURL == "" {
		return nil, errors.New("openai embedder: API key not set")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if dimensions <= 0 {
		dimensions = knownOpenAIDimensions[model]
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dim:    dimensions,
	}, nil
}

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in one request and L2-normalizes the results.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || len(d.Embedding) == 0 {
			return nil, fmt.Errorf("openai embeddings: %w", ErrEmptyEmbedding)
		}
		v := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float32(x)
		}
		if err := e.fixDimensions(len(v)); err != nil {
			return nil, err
		}
		utils.NormalizeL2(v)
		out[d.Index] = v
	}
	return out, nil
}

// fixDimensions records the dimension on first use and rejects changes.
func (e *OpenAIEmbedder) fixDimensions(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dim == 0 {
		e.dim = n
	}
	if n != e.dim {
		return fmt.Errorf("openai embeddings: dimension changed from %d to %d", e.dim, n)
	}
	return nil
}

// Dimensions returns the embedding dimension, or zero before it is known.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

// ModelID returns "openai-" followed by the model name.
func (e *OpenAIEmbedder) ModelID() string { return "openai-" + e.model }

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error { return nil }
