// Package config provides configuration loading and structs for the Jester knowledge server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig holds chunk store artifact paths, the similarity metric,
// and the taxonomy database path.
type StoreConfig struct {
	ChunksPath     string `yaml:"chunks_path"`
	VectorsPath    string `yaml:"vectors_path"`
	TaxonomyDBPath string `yaml:"taxonomy_db_path"`
	Metric         string `yaml:"metric"` // "l2" or "cosine"
}

// EmbeddingConfig holds embedding provider settings.
// Provider selects the implementation: "mock", "onnx", or "openai".
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"`
	ModelPath      string `yaml:"model_path"` // onnx
	Model          string `yaml:"model"`      // openai
	BaseURL        string `yaml:"base_url"`   // openai (empty = api.openai.com)
	APIKeyEnv      string `yaml:"api_key_env"`
	Dimensions     int    `yaml:"dimensions"`
	MaxTokens      int    `yaml:"max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
}

// IngestConfig holds chunking settings for knowledge ingestion.
type IngestConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size"` // characters per chunk
}

// NormalizerConfig holds measurement normalizer settings.
// Strategy is "ratio" (character sequence similarity) or "embedding".
type NormalizerConfig struct {
	Strategy  string  `yaml:"strategy"`
	Threshold float64 `yaml:"threshold"`
}

// WatchConfig holds knowledge directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Store.ChunksPath = expandPath(cfg.Store.ChunksPath, configDir)
	cfg.Store.VectorsPath = expandPath(cfg.Store.VectorsPath, configDir)
	cfg.Store.TaxonomyDBPath = expandPath(cfg.Store.TaxonomyDBPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
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
