// Package docuqa wires a config.Config into a running Orchestrator:
// config loading through the size/depth-limited YAML parser, collaborator
// construction, and a single Run(configPath, query) entry point.
//
// The Config/ConfigLoader/Run shape, including the FileReader seam for
// testability, is grounded on the teacher's root aixgo.go.
package docuqa

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/docuqa-dev/docuqa/internal/failurelog"
	"github.com/docuqa-dev/docuqa/internal/llmclient"
	"github.com/docuqa-dev/docuqa/internal/observability"
	"github.com/docuqa-dev/docuqa/internal/orchestrator"
	"github.com/docuqa-dev/docuqa/internal/reasoning"
	"github.com/docuqa-dev/docuqa/internal/retrieval"
	"github.com/docuqa-dev/docuqa/internal/security"
	"github.com/docuqa-dev/docuqa/internal/understanding"
	"github.com/docuqa-dev/docuqa/internal/verification"
	"github.com/docuqa-dev/docuqa/pkg/cache"
	"github.com/docuqa-dev/docuqa/pkg/config"
	"github.com/docuqa-dev/docuqa/pkg/docuqa"
	"github.com/docuqa-dev/docuqa/pkg/embeddings"
	"github.com/docuqa-dev/docuqa/pkg/translation"
	"github.com/docuqa-dev/docuqa/pkg/vectorstore/memory"
)

// FileReader abstracts config file reading for testability.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// OSFileReader implements FileReader using os.ReadFile.
type OSFileReader struct{}

func (r *OSFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) // #nosec G304 - path is from trusted config file input
}

// Pipeline bundles a loaded Orchestrator with its owned Cache, so callers
// can close any on-disk resources on shutdown.
type Pipeline struct {
	Orchestrator *orchestrator.Orchestrator
	cache        closer
}

type closer interface{ Close() error }

// Close releases the pipeline's cache handle, if it owns one.
func (p *Pipeline) Close() error {
	if p.cache != nil {
		return p.cache.Close()
	}
	return nil
}

// Build constructs a Pipeline from a loaded configuration: the LLM client,
// the four agents, the vector index, the response cache, and the
// translation chain.
func Build(cfg *config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	llm := llmclient.New(llmclient.Config{
		BaseURL:      cfg.ModelServer.BaseURL,
		MaxRetries:   cfg.ModelServer.MaxRetries,
		MaxInFlight:  cfg.ModelServer.MaxInFlight,
		AllowedHosts: cfg.ModelServer.AllowedHosts,
	})

	embedder, err := embeddings.New(embeddingConfigFor(cfg.Embedding))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding service: %w", err)
	}

	index := memory.New()

	var respCache cache.Cache
	var owned closer
	switch cfg.Cache.Provider {
	case "sqlite":
		sqliteCache, err := cache.NewSQLite(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
		}
		respCache, owned = sqliteCache, sqliteCache
	default:
		respCache = cache.NewInMemory()
	}

	var chain *translation.Chain
	if len(cfg.Translation.Providers) > 0 {
		providers := make([]translation.Provider, 0, len(cfg.Translation.Providers))
		for range cfg.Translation.Providers {
			providers = append(providers, translation.NewLLMProvider(
				func(ctx context.Context, prompt string, maxTokens int) (string, error) {
					result := llm.Generate(ctx, prompt, maxTokens, nil)
					if !result.Success {
						return "", result.Err
					}
					return result.Text, nil
				},
			))
		}
		chain = &translation.Chain{Providers: providers}
	}

	orch := &orchestrator.Orchestrator{
		Understanding: &understanding.Agent{LLM: llm},
		Retrieval:     &retrieval.Agent{Index: index, Embedder: embedder},
		Reasoning: &reasoning.Agent{
			LLM:      llm,
			Failures: failurelog.NewInMemory(),
			Injector: security.NewPromptInjectionDetector(security.SensitivityMedium),
		},
		Verification:   &verification.Agent{LLM: llm},
		Index:          index,
		Cache:          respCache,
		Translator:     chain,
		SoftDeadline:   time.Duration(cfg.Runtime.SoftDeadlineSec) * time.Second,
		MaxRefinements: cfg.Runtime.MaxRefinements,
	}

	return &Pipeline{Orchestrator: orch, cache: owned}, nil
}

// ConfigLoader loads a pipeline configuration through the security-hardened
// YAML parser.
type ConfigLoader struct {
	fileReader FileReader
}

// NewConfigLoader builds a ConfigLoader with the given file reader.
func NewConfigLoader(fr FileReader) *ConfigLoader {
	return &ConfigLoader{fileReader: fr}
}

// LoadConfig reads configPath through the loader's FileReader and parses it
// with the size/depth-limited YAML parser.
func (cl *ConfigLoader) LoadConfig(configPath string) (*config.Config, error) {
	data, err := cl.fileReader.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return config.ParseConfig(data)
}

// Run loads configPath, builds the pipeline, and answers a single query
// against it, returning the terminal Response.
func Run(ctx context.Context, configPath string, query docuqa.Query) (docuqa.Response, error) {
	if err := observability.InitFromEnv(); err != nil {
		log.Printf("Warning: failed to initialize observability: %v", err)
	}

	cfg, err := NewConfigLoader(&OSFileReader{}).LoadConfig(configPath)
	if err != nil {
		return docuqa.Response{}, err
	}

	pipeline, err := Build(cfg)
	if err != nil {
		return docuqa.Response{}, err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Printf("Warning: failed to close pipeline cache: %v", err)
		}
	}()

	return pipeline.Orchestrator.Run(ctx, query), nil
}

// embeddingConfigFor maps the flat config.EmbeddingConfig onto the
// provider-specific shape embeddings.New dispatches on.
func embeddingConfigFor(ec config.EmbeddingConfig) embeddings.Config {
	cfg := embeddings.Config{Provider: ec.Provider}
	switch ec.Provider {
	case "huggingface":
		cfg.HuggingFace = &embeddings.HuggingFaceConfig{
			APIKey: ec.APIKey, Model: ec.Model, Endpoint: ec.Endpoint,
			WaitForModel: true, UseCache: true,
		}
	case "huggingface_tei":
		cfg.HuggingFaceTEI = &embeddings.HuggingFaceTEIConfig{
			Endpoint: ec.Endpoint, Model: ec.Model, Normalize: true,
		}
	default:
		cfg.OpenAI = &embeddings.OpenAIConfig{APIKey: ec.APIKey, Model: ec.Model, BaseURL: ec.Endpoint}
	}
	return cfg
}
