// Package retrieval answers top-k semantic queries against the chunk store.
package retrieval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/siestheapp/jester-remote/internal/embedding"
	"github.com/siestheapp/jester-remote/internal/metrics"
	"github.com/siestheapp/jester-remote/internal/models"
	"github.com/siestheapp/jester-remote/internal/store"
	"github.com/siestheapp/jester-remote/internal/vector"
)

// Service composes the embedder, similarity index, and chunk store into a
// "top-k most relevant chunks for this query" operation.
//
// Similarity convention (one per store, never mixed): 1/(1+d) for squared
// Euclidean distance, raw cosine similarity (1-d) for the cosine metric.
type Service struct {
	store        *store.Store
	embedder     embedding.Embedder
	embedTimeout time.Duration
	logger       *zap.Logger
}

// NewService creates a retrieval service with the given dependencies.
func NewService(st *store.Store, embedder embedding.Embedder, embedTimeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        st,
		embedder:     embedder,
		embedTimeout: embedTimeout,
		logger:       logger,
	}
}

// Search returns up to k chunks ordered by decreasing similarity.
// An empty store or k <= 0 returns an empty result without calling the
// embedder; two calls against an unmodified store return identical results.
func (s *Service) Search(ctx context.Context, query string, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 || s.store.Len() == 0 {
		return nil, nil
	}

	queryVec, err := embedding.EmbedWithTimeout(ctx, s.embedder, s.embedTimeout, query)
	if err != nil {
		return nil, err
	}

	neighbors, err := s.store.Nearest(queryVec, k)
	if err != nil {
		return nil, err
	}

	metrics.SearchesTotal.Inc()
	results := make([]models.RetrievedChunk, 0, len(neighbors))
	for _, n := range neighbors {
		results = append(results, models.RetrievedChunk{
			Text:       n.Chunk.Text,
			Metadata:   n.Chunk.Metadata,
			Similarity: toSimilarity(s.store.Metric(), n.Distance),
		})
	}
	s.logger.Debug("search complete", zap.Int("k", k), zap.Int("results", len(results)))
	return results, nil
}

// toSimilarity converts a raw index distance to the normalized score.
func toSimilarity(metric vector.Metric, distance float64) float64 {
	if metric == vector.MetricCosine {
		return 1 - distance
	}
	return 1 / (1 + distance)
}
