// Package config provides configuration loading and structs for the docent server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Vector     VectorConfig     `yaml:"vector"`
	RAG        RAGConfig        `yaml:"rag"`
	Watch      WatchConfig      `yaml:"watch"`

	// explicit holds "section.key" names present in the loaded file, so
	// defaults never overwrite a deliberate zero.
	explicit map[string]bool
}

// MarkExplicit records keys such as "rag.chunk_overlap" whose zero value is
// intentional and must survive ApplyDefaults.
func (c *Config) MarkExplicit(keys ...string) {
	if c.explicit == nil {
		c.explicit = make(map[string]bool, len(keys))
	}
	for _, k := range keys {
		c.explicit[k] = true
	}
}

func (c *Config) isExplicit(key string) bool {
	return c.explicit[key]
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds where persisted indices live.
type StorageConfig struct {
	IndexDir string `yaml:"index_dir"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	// Provider is one of hash, onnx, openai, ollama.
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	ModelPath  string        `yaml:"model_path"`
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Dimensions int           `yaml:"dimensions"`
	MaxTokens  int           `yaml:"max_tokens"`
	CacheSize  int           `yaml:"cache_size"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GenerationConfig selects and configures the generation backend.
type GenerationConfig struct {
	// Provider is one of extractive, openai, ollama.
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"base_url"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Temperature     float32       `yaml:"temperature"`
	Timeout         time.Duration `yaml:"timeout"`
}

// VectorConfig selects the flat similarity index implementation.
type VectorConfig struct {
	IndexType string `yaml:"index_type"`
}

// RAGConfig holds chunking and retrieval settings.
type RAGConfig struct {
	ChunkSize          int `yaml:"chunk_size"`
	ChunkOverlap       int `yaml:"chunk_overlap"`
	MaxContextChunks   int `yaml:"max_context_chunks"`
	SourcePreviewChars int `yaml:"source_preview_chars"`
}

// WatchConfig controls reloading the loaded document when it changes on disk.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// APIKey returns the value of the environment variable named by APIKeyEnv.
func (e EmbeddingConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(e.APIKeyEnv))
}

// APIKey returns the value of the environment variable named by APIKeyEnv.
func (g GenerationConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(g.APIKeyEnv))
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, applies environment
// overrides and defaults, validates, and expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.explicit = presentKeys(data)

	if err := finalize(&cfg, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// presentKeys lists the top-level sections and "section.key" names that
// appear in a YAML document.
func presentKeys(data []byte) map[string]bool {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil || len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	keys := make(map[string]bool)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		section, body := doc.Content[i].Value, doc.Content[i+1]
		keys[section] = true
		if body.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(body.Content); j += 2 {
			keys[section+"."+body.Content[j].Value] = true
		}
	}
	return keys
}

// LoadOrDefault loads path when it exists and otherwise returns defaults,
// with relative paths resolved against the working directory.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := &Config{}
		if err := finalize(cfg, "."); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

func finalize(cfg *Config, configDir string) error {
	ApplyEnv(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides provider and model selection from DOCENT_* variables.
func ApplyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Embedding.Provider, "DOCENT_EMBEDDING_PROVIDER")
	set(&cfg.Embedding.Model, "DOCENT_EMBEDDING_MODEL")
	set(&cfg.Embedding.BaseURL, "DOCENT_EMBEDDING_BASE_URL")
	set(&cfg.Generation.Provider, "DOCENT_GENERATION_PROVIDER")
	set(&cfg.Generation.Model, "DOCENT_GENERATION_MODEL")
	set(&cfg.Generation.BaseURL, "DOCENT_GENERATION_BASE_URL")
}

// Validate rejects settings no component can run with.
func Validate(cfg *Config) error {
	if cfg.RAG.ChunkSize <= 0 {
		return fmt.Errorf("invalid config: rag.chunk_size must be positive, got %d", cfg.RAG.ChunkSize)
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		return fmt.Errorf("invalid config: rag.chunk_overlap must be in [0, %d), got %d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	switch cfg.Embedding.Provider {
	case ProviderHash, ProviderONNX, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("invalid config: unknown embedding provider %q", cfg.Embedding.Provider)
	}
	switch cfg.Generation.Provider {
	case ProviderExtractive, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("invalid config: unknown generation provider %q", cfg.Generation.Provider)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
