package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.ChunksPath == "" {
		cfg.Store.ChunksPath = "/usr/local/var/jester/data/vector/chunks.json"
	}
	if cfg.Store.VectorsPath == "" {
		cfg.Store.VectorsPath = "/usr/local/var/jester/data/vector/embeddings.bin"
	}
	if cfg.Store.TaxonomyDBPath == "" {
		cfg.Store.TaxonomyDBPath = "/usr/local/var/jester/data/db/taxonomy.db"
	}
	if cfg.Store.Metric == "" {
		cfg.Store.Metric = "l2"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/jester/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 3
	}
	if cfg.Retrieval.MaxK == 0 {
		cfg.Retrieval.MaxK = 100
	}
	if cfg.Ingest.MaxChunkSize == 0 {
		cfg.Ingest.MaxChunkSize = 1000
	}
	if cfg.Normalizer.Strategy == "" {
		cfg.Normalizer.Strategy = "ratio"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
