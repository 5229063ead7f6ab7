// Package config loads the pipeline's runtime configuration: the model
// server address and policy, the vector index and cache backends, and
// translation provider settings.
//
// The YAML-plus-env-fallback loading pattern and the Validate() contract
// are kept from the teacher's pkg/config/config.go; parsing goes through
// internal/security.SafeYAMLParser instead of a bare yaml.Unmarshal, per
// that package's size/depth-limited parsing contract.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/docuqa-dev/docuqa/internal/security"
)

// Config is the top-level configuration for a docuqa process.
type Config struct {
	// ModelServer configures the LLM Client's connection to the external
	// inference server.
	ModelServer ModelServerConfig `yaml:"model_server"`

	// Embedding configures the embedding provider used at query time to
	// match ingestion's embedding space.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// VectorIndex selects and configures the vector index backend.
	VectorIndex VectorIndexConfig `yaml:"vector_index"`

	// Cache selects and configures the response cache backend.
	Cache CacheConfig `yaml:"cache"`

	// Translation configures the translation provider chain.
	Translation TranslationConfig `yaml:"translation"`

	// Runtime holds concurrency and deadline policy.
	Runtime RuntimeConfig `yaml:"runtime"`
}

// ModelServerConfig configures the LLM Client.
type ModelServerConfig struct {
	BaseURL        string   `yaml:"base_url"`
	CallTimeoutSec int      `yaml:"call_timeout_seconds"`
	MaxRetries     int      `yaml:"max_retries"`
	MaxBackoffSec  int      `yaml:"max_backoff_seconds"`
	MaxInFlight    int      `yaml:"max_in_flight"`
	AllowedHosts   []string `yaml:"allowed_hosts"`
}

// EmbeddingConfig selects the embedding provider ("openai",
// "huggingface", "huggingface_tei") and its provider-specific settings.
type EmbeddingConfig struct {
	Provider       string            `yaml:"provider"`
	APIKey         string            `yaml:"api_key"`
	Model          string            `yaml:"model"`
	Endpoint       string            `yaml:"endpoint"`
	ProviderConfig map[string]string `yaml:"provider_config"`
}

// VectorIndexConfig selects the vector index backend. "memory" is the
// only backend this module ships; other values are accepted for forward
// compatibility with an external index.
type VectorIndexConfig struct {
	Provider string `yaml:"provider"` // "memory"
}

// CacheConfig selects the response cache backend: "memory" or "sqlite".
type CacheConfig struct {
	Provider string `yaml:"provider"`
	Path     string `yaml:"path"` // SQLite file path, ignored for "memory"
}

// TranslationConfig names the translation providers to chain, in order.
type TranslationConfig struct {
	Providers []string `yaml:"providers"`
	TargetLanguage string `yaml:"target_language"`
}

// RuntimeConfig holds pipeline-wide concurrency and deadline policy.
type RuntimeConfig struct {
	SoftDeadlineSec int `yaml:"soft_deadline_seconds"`
	MaxRefinements  int `yaml:"max_refinements"`
}

// LoadConfig loads configuration from a YAML file through the
// size/depth-limited parser, applies defaults, and fills API keys from
// the environment where the file omits them.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses raw YAML bytes through the size/depth-limited parser,
// applies defaults, and fills API keys from the environment where the
// document omits them. Exposed so callers with their own file-reading seam
// (e.g. for tests) can still get LoadConfig's defaulting behavior.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	parser := security.NewSafeYAMLParser(security.DefaultYAMLLimits())
	if err := parser.UnmarshalYAML(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("EMBEDDING_API_KEY")
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ModelServer.BaseURL == "" {
		cfg.ModelServer.BaseURL = "http://localhost:8080"
	}
	if cfg.ModelServer.CallTimeoutSec == 0 {
		cfg.ModelServer.CallTimeoutSec = 30
	}
	if cfg.ModelServer.MaxRetries == 0 {
		cfg.ModelServer.MaxRetries = 3
	}
	if cfg.ModelServer.MaxBackoffSec == 0 {
		cfg.ModelServer.MaxBackoffSec = 30
	}
	if cfg.ModelServer.MaxInFlight == 0 {
		cfg.ModelServer.MaxInFlight = 2
	}
	if cfg.VectorIndex.Provider == "" {
		cfg.VectorIndex.Provider = "memory"
	}
	if cfg.Cache.Provider == "" {
		cfg.Cache.Provider = "memory"
	}
	if cfg.Translation.TargetLanguage == "" {
		cfg.Translation.TargetLanguage = "en"
	}
	if cfg.Runtime.SoftDeadlineSec == 0 {
		cfg.Runtime.SoftDeadlineSec = 90
	}
	if cfg.Runtime.MaxRefinements == 0 {
		cfg.Runtime.MaxRefinements = 2
	}
}

// SaveConfig serializes cfg to a YAML file.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration is complete enough to start the
// pipeline.
func (c *Config) Validate() error {
	if c.ModelServer.BaseURL == "" {
		return fmt.Errorf("model_server.base_url is required")
	}
	switch c.Cache.Provider {
	case "memory":
	case "sqlite":
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required when cache.provider is \"sqlite\"")
		}
	default:
		return fmt.Errorf("unsupported cache provider: %s", c.Cache.Provider)
	}
	if c.VectorIndex.Provider != "memory" {
		return fmt.Errorf("unsupported vector_index provider: %s", c.VectorIndex.Provider)
	}
	return nil
}
