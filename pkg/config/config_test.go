package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig_FileSizeLimit(t *testing.T) {
	tmpDir := t.TempDir()

	largeFile := filepath.Join(tmpDir, "large.yaml")
	data := strings.Repeat("x: value\n", 1200000) // ~10.8MB, over the 10MB default limit
	if err := os.WriteFile(largeFile, []byte(data), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	_, err := LoadConfig(largeFile)
	if err == nil {
		t.Error("expected error for large file")
	}
	if !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("expected a size-limit error, got: %v", err)
	}
}

func TestLoadConfig_ValidFileAppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	validConfig := `
model_server:
  base_url: http://inference-server:9000
embedding:
  provider: openai
  model: text-embedding-3-small
`

	validFile := filepath.Join(tmpDir, "valid.yaml")
	if err := os.WriteFile(validFile, []byte(validConfig), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cfg, err := LoadConfig(validFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ModelServer.BaseURL != "http://inference-server:9000" {
		t.Errorf("expected base_url from file, got %s", cfg.ModelServer.BaseURL)
	}
	if cfg.ModelServer.CallTimeoutSec != 30 {
		t.Errorf("expected default call timeout 30, got %d", cfg.ModelServer.CallTimeoutSec)
	}
	if cfg.Cache.Provider != "memory" {
		t.Errorf("expected default cache provider memory, got %s", cfg.Cache.Provider)
	}
	if cfg.Runtime.SoftDeadlineSec != 90 {
		t.Errorf("expected default soft deadline 90, got %d", cfg.Runtime.SoftDeadlineSec)
	}
}

func TestLoadConfig_NonexistentFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()

	invalidYAML := `
model_server:
  base_url: [[[
`

	invalidFile := filepath.Join(tmpDir, "invalid.yaml")
	if err := os.WriteFile(invalidFile, []byte(invalidYAML), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	if _, err := LoadConfig(invalidFile); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate_RequiresKnownCacheProvider(t *testing.T) {
	cfg := &Config{
		ModelServer: ModelServerConfig{BaseURL: "http://localhost:8080"},
		VectorIndex: VectorIndexConfig{Provider: "memory"},
		Cache:       CacheConfig{Provider: "redis"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported cache provider")
	}
}

func TestValidate_SQLiteRequiresPath(t *testing.T) {
	cfg := &Config{
		ModelServer: ModelServerConfig{BaseURL: "http://localhost:8080"},
		VectorIndex: VectorIndexConfig{Provider: "memory"},
		Cache:       CacheConfig{Provider: "sqlite"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sqlite provider without a path")
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := &Config{
		ModelServer: ModelServerConfig{BaseURL: "http://localhost:8080"},
		VectorIndex: VectorIndexConfig{Provider: "memory"},
		Cache:       CacheConfig{Provider: "memory"},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
