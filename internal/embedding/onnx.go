//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hyperjump/docent/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a sentence-embedding model through ONNX Runtime. It
// requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	modelID    string
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer

	mu      sync.Mutex
	session *ort.AdvancedSession
	inputs  []*ort.Tensor[int64]
	output  *ort.Tensor[float32]
}

var onnxInputNames = []string{"input_ids", "attention_mask", "token_type_ids"}

// NewONNXEmbedder loads the model at modelPath. The model must take
// input_ids, attention_mask and token_type_ids of shape [1, maxTokens] and
// produce a pooled "output" of shape [1, dimensions].
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}
	e := &ONNXEmbedder{
		modelID:    "onnx-" + strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath)),
		dimensions: dimensions,
		maxTokens:  maxTokens,
		tokenizer:  &SimpleTokenizer{},
	}
	shape := ort.NewShape(1, int64(maxTokens))
	for _, name := range onnxInputNames {
		t, err := ort.NewEmptyTensor[int64](shape)
		if err != nil {
			e.destroyTensors()
			return nil, fmt.Errorf("failed to create %s tensor: %w", name, err)
		}
		e.inputs = append(e.inputs, t)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	e.output = out

	inputs := make([]ort.ArbitraryTensor, len(e.inputs))
	for i, t := range e.inputs {
		inputs[i] = t
	}
	session, err := ort.NewAdvancedSession(modelPath, onnxInputNames, []string{"output"},
		inputs, []ort.ArbitraryTensor{e.output}, nil)
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", modelPath, err)
	}
	e.session = session
	return e, nil
}

// Embed runs one inference and returns the L2-normalized pooled output.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("onnx embedder is closed")
	}

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputs[0].GetData(), ids)
	copy(e.inputs[1].GetData(), mask)
	copy(e.inputs[2].GetData(), types)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	emb := make([]float32, e.dimensions)
	copy(emb, e.output.GetData())
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch embeds each text in order; the session holds a single-row shape.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int { return e.dimensions }

// ModelID returns "onnx-" followed by the model file's base name.
func (e *ONNXEmbedder) ModelID() string { return e.modelID }

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	e.destroyTensors()
	return err
}

func (e *ONNXEmbedder) destroyTensors() {
	for _, t := range e.inputs {
		_ = t.Destroy()
	}
	e.inputs = nil
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
}
