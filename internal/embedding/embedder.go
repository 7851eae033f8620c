// Package embedding provides text embedding via ONNX, an OpenAI-compatible
// API, and caching.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations must be
// deterministic for identical input and emit fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
