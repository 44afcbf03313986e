// Package generation wraps the text generation backends that answer a
// grounded prompt.
package generation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/pkg/utils"
)

// Prompt layout shared by the prompt builder and the extractive backend.
const (
	ContextLabel  = "Context:"
	QuestionLabel = "Question:"
	AnswerLabel   = "Answer:"

	// RefusalSentinel is the exact reply expected when the context does not
	// contain the answer.
	RefusalSentinel = "I cannot find this information in the document."
)

// Generator produces a completion for a prompt. Output may be sampled and
// therefore differ between calls.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	ModelID() string
	Close() error
}

// Loader opens a generation backend. Loading may be slow, so callers load
// lazily and keep the result.
type Loader func(ctx context.Context) (Generator, error)

// BackendError reports a generation backend that failed to load or failed
// during a call.
type BackendError struct {
	Model string
	Op    string // "load" or "generate"
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("generation backend %s: %s: %v", e.Model, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewLoader returns a Loader for the backend selected by cfg.Provider.
// Construction errors are reported as *BackendError with Op "load".
func NewLoader(cfg config.GenerationConfig, logger *zap.Logger) Loader {
	logger = utils.OrNop(logger)
	return func(ctx context.Context) (Generator, error) {
		var (
			g   Generator
			err error
		)
		switch cfg.Provider {
		case config.ProviderExtractive, "":
			g = NewExtractive()
		case config.ProviderOpenAI:
			g, err = NewOpenAIGenerator(cfg.APIKey(), cfg.BaseURL, cfg.Model, cfg.Temperature)
		case config.ProviderOllama:
			o := NewOllamaGenerator(cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.Timeout)
			if err = o.Ping(ctx); err == nil {
				g = o
			}
		default:
			err = fmt.Errorf("unknown generation provider %q", cfg.Provider)
		}
		if err != nil {
			return nil, &BackendError{Model: cfg.Model, Op: "load", Err: err}
		}
		logger.Info("generation backend loaded", zap.String("model", g.ModelID()))
		return g, nil
	}
}
