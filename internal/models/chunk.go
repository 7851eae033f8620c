// Package models defines core data structures for chunks, retrieval results,
// and measurement matches.
package models

// Chunk is a stored piece of knowledge text with its embedding.
// ID is the chunk's position in the store (assigned at add time).
// Text and Metadata are what gets persisted to the chunks artifact;
// the embedding lives in the co-located vectors artifact at the same position.
type Chunk struct {
	ID        int64             `json:"-"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"-"`
}

// RetrievedChunk is a single retrieval hit with its normalized similarity.
type RetrievedChunk struct {
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float64           `json:"similarity"`
}

// MatchResult is a successful measurement-name match.
// Score is 1.0 for exact variant hits, otherwise the fuzzy similarity
// in [0,1] that cleared the threshold.
type MatchResult struct {
	Canonical      string  `json:"canonical"`
	Score          float64 `json:"score"`
	MatchedVariant string  `json:"matched_variant"`
}
