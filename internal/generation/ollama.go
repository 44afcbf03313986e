package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaGenerator answers prompts with a local Ollama server.
type OllamaGenerator struct {
	baseURL     string
	model       string
	temperature float32
	client      *http.Client
}

// NewOllamaGenerator creates a generator for model served at baseURL.
func NewOllamaGenerator(baseURL, model string, temperature float32, timeout time.Duration) *OllamaGenerator {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaGenerator{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

// Ping checks that the server answers and serves the configured model.
func (o *OllamaGenerator) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags: status %d", resp.StatusCode)
	}
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decode ollama tags: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == o.model || strings.TrimSuffix(m.Name, ":latest") == o.model {
			return nil
		}
	}
	return fmt.Errorf("model %q not available on %s", o.model, o.baseURL)
}

// Generate posts prompt to /api/generate without streaming.
func (o *OllamaGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"num_predict": maxTokens,
			"temperature": o.temperature,
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", o.fail(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", o.fail(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", o.fail(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", o.fail(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	var out struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", o.fail(fmt.Errorf("decode response: %w", err))
	}
	if out.Error != "" {
		return "", o.fail(fmt.Errorf("%s", out.Error))
	}
	return strings.TrimSpace(out.Response), nil
}

func (o *OllamaGenerator) fail(err error) error {
	return &BackendError{Model: o.ModelID(), Op: "generate", Err: err}
}

// ModelID names the backend and model.
func (o *OllamaGenerator) ModelID() string { return "ollama-" + o.model }

// Close releases idle connections.
func (o *OllamaGenerator) Close() error {
	o.client.CloseIdleConnections()
	return nil
}
