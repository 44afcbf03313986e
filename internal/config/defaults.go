package config

import "time"

// Backend provider names.
const (
	ProviderHash       = "hash"
	ProviderONNX       = "onnx"
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderExtractive = "extractive"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 7860
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = ".local/share/docent/indices"
	}

	e := &cfg.Embedding
	if e.Provider == "" {
		e.Provider = ProviderHash
	}
	if e.Model == "" {
		switch e.Provider {
		case ProviderOpenAI:
			e.Model = "text-embedding-3-small"
		case ProviderOllama:
			e.Model = "nomic-embed-text"
		default:
			e.Model = "all-MiniLM-L6-v2"
		}
	}
	if e.BaseURL == "" && e.Provider == ProviderOllama {
		e.BaseURL = "http://localhost:11434"
	}
	if e.APIKeyEnv == "" {
		e.APIKeyEnv = "OPENAI_API_KEY"
	}
	if e.Dimensions == 0 && (e.Provider == ProviderHash || e.Provider == ProviderONNX) {
		e.Dimensions = 384
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = 256
	}
	if e.CacheSize == 0 {
		e.CacheSize = 10000
	}
	if e.BatchSize == 0 {
		e.BatchSize = 32
	}
	if e.Timeout == 0 {
		e.Timeout = 60 * time.Second
	}

	g := &cfg.Generation
	if g.Provider == "" {
		g.Provider = ProviderExtractive
	}
	if g.Model == "" {
		switch g.Provider {
		case ProviderOpenAI:
			g.Model = "gpt-4o-mini"
		case ProviderOllama:
			g.Model = "llama3.2"
		default:
			g.Model = "extractive"
		}
	}
	if g.BaseURL == "" && g.Provider == ProviderOllama {
		g.BaseURL = "http://localhost:11434"
	}
	if g.APIKeyEnv == "" {
		g.APIKeyEnv = "OPENAI_API_KEY"
	}
	if g.MaxOutputTokens == 0 {
		g.MaxOutputTokens = 256
	}
	if g.Temperature == 0 && !cfg.isExplicit("generation.temperature") {
		g.Temperature = 0.7
	}
	if g.Timeout == 0 {
		g.Timeout = 120 * time.Second
	}

	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 500
	}
	if cfg.RAG.ChunkOverlap == 0 && cfg.RAG.ChunkSize > 50 && !cfg.isExplicit("rag.chunk_overlap") {
		cfg.RAG.ChunkOverlap = 50
	}
	if cfg.RAG.MaxContextChunks == 0 {
		cfg.RAG.MaxContextChunks = 3
	}
	if cfg.RAG.SourcePreviewChars == 0 {
		cfg.RAG.SourcePreviewChars = 200
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
}
