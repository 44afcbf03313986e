package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/docent/pkg/utils"
)

// OllamaEmbedder embeds text with a local Ollama server.
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client

	mu  sync.Mutex
	dim int
}

// NewOllamaEmbedder creates an embedder for model served at baseURL.
func NewOllamaEmbedder(baseURL, model string, dimensions int, timeout time.Duration) *OllamaEmbedder {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OllamaEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		dim:     dimensions,
	}
}

// Embed posts text to /api/embeddings and returns the normalized vector.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]any{"model": o.model, "prompt": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ollama embedding response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("ollama embedding error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode ollama embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("ollama: %w", ErrEmptyEmbedding)
	}

	o.mu.Lock()
	if o.dim == 0 {
		o.dim = len(parsed.Embedding)
	}
	dim := o.dim
	o.mu.Unlock()
	if len(parsed.Embedding) != dim {
		return nil, fmt.Errorf("ollama: embedding has %d dimensions, want %d", len(parsed.Embedding), dim)
	}
	utils.NormalizeL2(parsed.Embedding)
	return parsed.Embedding, nil
}

// EmbedBatch embeds each text in order.
func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, o, texts)
}

// Dimensions returns the embedding dimension, or zero before it is known.
func (o *OllamaEmbedder) Dimensions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dim
}

// ModelID returns "ollama-" followed by the model name.
func (o *OllamaEmbedder) ModelID() string { return "ollama-" + o.model }

// Close releases idle connections.
func (o *OllamaEmbedder) Close() error {
	o.client.CloseIdleConnections()
	return nil
}
