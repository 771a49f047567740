package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pdf-analyzer/internal/apperrors"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
	ProviderHash     = "hash"
)

type Config struct {
	LogLevel string         `yaml:"log_level"`
	LLM      LLMConfig      `yaml:"llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Search   SearchConfig   `yaml:"search"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Retry    RetryConfig    `yaml:"retry"`
	Server   ServerConfig   `yaml:"server"`
}

// LLMConfig configures both the embedding and the generation service. They
// share a provider and a credential.
type LLMConfig struct {
	Provider       string  `yaml:"provider"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Temperature    float64 `yaml:"temperature"`
	BatchSize      int     `yaml:"batch_size"`
	HashDimension  int     `yaml:"hash_dimension"`

	Key string `yaml:"-"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

type SearchConfig struct {
	WebLimit       int    `yaml:"web_limit"`
	VideoLimit     int    `yaml:"video_limit"`
	WebBaseURL     string `yaml:"web_base_url"`
	VideoEndpoint  string `yaml:"video_endpoint"`
	VideoAPIKeyEnv string `yaml:"video_api_key_env"`

	VideoKey string `yaml:"-"`
}

type TimeoutsConfig struct {
	Embed    time.Duration `yaml:"embed"`
	Generate time.Duration `yaml:"generate"`
	Search   time.Duration `yaml:"search"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

type ServerConfig struct {
	Address        string `yaml:"address"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
// Credentials are not resolved here; see ResolveCredentials.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	llm := &cfg.LLM
	if llm.Provider == "" {
		llm.Provider = ProviderGoogleAI
	}
	if llm.Model == "" {
		switch llm.Provider {
		case ProviderOpenAI:
			llm.Model = "gpt-4o-mini"
		case ProviderOllama:
			llm.Model = "llama3.1"
		default:
			llm.Model = "gemini-1.5-flash"
		}
	}
	if llm.EmbeddingModel == "" {
		switch llm.Provider {
		case ProviderOpenAI:
			llm.EmbeddingModel = "text-embedding-3-small"
		case ProviderOllama:
			llm.EmbeddingModel = "nomic-embed-text"
		default:
			llm.EmbeddingModel = "embedding-001"
		}
	}
	if llm.APIKeyEnv == "" {
		switch llm.Provider {
		case ProviderOpenAI:
			llm.APIKeyEnv = "OPENAI_API_KEY"
		default:
			llm.APIKeyEnv = "GOOGLE_API_KEY"
		}
	}
	if llm.Temperature == 0 {
		llm.Temperature = 0.3
	}
	if llm.BatchSize <= 0 {
		llm.BatchSize = 32
	}
	if llm.HashDimension <= 0 {
		llm.HashDimension = 64
	}

	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = 10000
	}
	if cfg.RAG.ChunkOverlap <= 0 {
		cfg.RAG.ChunkOverlap = 1000
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = 4
	}

	s := &cfg.Search
	if s.WebLimit <= 0 {
		s.WebLimit = 5
	}
	if s.VideoLimit <= 0 {
		s.VideoLimit = 5
	}
	if s.WebBaseURL == "" {
		s.WebBaseURL = "https://lite.duckduckgo.com/lite/"
	}
	if s.VideoAPIKeyEnv == "" {
		s.VideoAPIKeyEnv = "YOUTUBE_API_KEY"
	}

	if cfg.Timeouts.Embed <= 0 {
		cfg.Timeouts.Embed = 30 * time.Second
	}
	if cfg.Timeouts.Generate <= 0 {
		cfg.Timeouts.Generate = 60 * time.Second
	}
	if cfg.Timeouts.Search <= 0 {
		cfg.Timeouts.Search = 10 * time.Second
	}

	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseBackoff <= 0 {
		cfg.Retry.BaseBackoff = 200 * time.Millisecond
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = 5 * time.Second
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 50 << 20
	}
}

// LoadEnv loads a .env file if one exists. A missing file is not an error.
func LoadEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// ResolveCredentials reads the generation and video-search keys from the
// environment. It runs once at startup; a missing key is a config error.
func (c *Config) ResolveCredentials(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if c.LLM.NeedsKey() {
		c.LLM.Key = strings.TrimSpace(getenv(c.LLM.APIKeyEnv))
		if c.LLM.Key == "" {
			return apperrors.Wrap(apperrors.CodeConfig, fmt.Sprintf("missing API key in env %s", c.LLM.APIKeyEnv), nil)
		}
	}
	c.Search.VideoKey = strings.TrimSpace(getenv(c.Search.VideoAPIKeyEnv))
	if c.Search.VideoKey == "" {
		return apperrors.Wrap(apperrors.CodeConfig, fmt.Sprintf("missing API key in env %s", c.Search.VideoAPIKeyEnv), nil)
	}
	return nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGoogleAI, ProviderOpenAI, ProviderOllama, ProviderHash:
	default:
		return apperrors.Wrap(apperrors.CodeConfig, fmt.Sprintf("unknown llm provider: %s", c.LLM.Provider), nil)
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return apperrors.Wrap(apperrors.CodeConfig, fmt.Sprintf("chunk_overlap (%d) must be smaller than chunk_size (%d)", c.RAG.ChunkOverlap, c.RAG.ChunkSize), nil)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return apperrors.Wrap(apperrors.CodeConfig, fmt.Sprintf("temperature out of range: %v", c.LLM.Temperature), nil)
	}
	return nil
}

// NeedsKey reports whether the provider authenticates with an API key.
func (l LLMConfig) NeedsKey() bool {
	return l.Provider == ProviderGoogleAI || l.Provider == ProviderOpenAI
}
