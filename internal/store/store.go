// Package store implements the durable, append-only chunk store and its
// derived similarity index.
//
// Two co-located artifacts hold the durable state: a binary matrix of
// embeddings in insertion order (see vector.WriteMatrix) and a JSON array of
// {text, metadata} objects in the same order. Position i in both refers to
// the same chunk. Chunks are immutable once stored; there is no update or
// delete path.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/siestheapp/jester-remote/internal/embedding"
	"github.com/siestheapp/jester-remote/internal/models"
	"github.com/siestheapp/jester-remote/internal/vector"
)

// Store owns the chunk list and the similarity index built over it.
// Writers hold the exclusive lock for the whole embed-append-persist
// sequence; readers take consistent snapshots and never observe a chunk
// whose embedding is missing from the index.
type Store struct {
	embedder     embedding.Embedder
	index        *vector.FlatIndex
	chunks       []models.Chunk
	chunksPath   string
	vectorsPath  string
	embedTimeout time.Duration
	logger       *zap.Logger
	mu           sync.RWMutex
}

// Neighbor is a chunk paired with its raw distance from a query vector.
type Neighbor struct {
	Chunk    models.Chunk
	Distance float64
}

// Options configures a Store.
type Options struct {
	ChunksPath   string
	VectorsPath  string
	Metric       vector.Metric
	EmbedTimeout time.Duration
	Logger       *zap.Logger
}

// New creates a store whose dimensionality is fixed by the embedder's
// declared output size. Call Load before use to pick up prior state.
func New(embedder embedding.Embedder, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	idx, err := vector.NewFlatIndex(embedder.Dimensions(), opts.Metric)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Store{
		embedder:     embedder,
		index:        idx,
		chunks:       make([]models.Chunk, 0),
		chunksPath:   opts.ChunksPath,
		vectorsPath:  opts.VectorsPath,
		embedTimeout: opts.EmbedTimeout,
		logger:       opts.Logger,
	}, nil
}

// chunkRecord is the persisted form of a chunk in the JSON artifact.
type chunkRecord struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Load reconstructs chunks and embeddings from the durable artifacts.
// Missing both artifacts initializes an empty store. A missing or
// length-inconsistent artifact pair is a corrupt store: fatal, no auto-repair.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunksExists := fileExists(s.chunksPath)
	vectorsExists := fileExists(s.vectorsPath)
	if !chunksExists && !vectorsExists {
		s.chunks = make([]models.Chunk, 0)
		return s.index.Build(nil)
	}
	if chunksExists != vectorsExists {
		return fmt.Errorf("one artifact missing (chunks=%v, vectors=%v): %w",
			chunksExists, vectorsExists, models.ErrCorruptStore)
	}

	data, err := os.ReadFile(s.chunksPath)
	if err != nil {
		return fmt.Errorf("read chunks artifact: %w", err)
	}
	var records []chunkRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse chunks artifact: %v: %w", err, models.ErrCorruptStore)
	}

	f, err := os.Open(s.vectorsPath)
	if err != nil {
		return fmt.Errorf("open vectors artifact: %w", err)
	}
	defer f.Close()
	vectors, err := vector.ReadMatrix(f, s.index.Dimensions())
	if err != nil {
		return fmt.Errorf("read vectors artifact: %v: %w", err, models.ErrCorruptStore)
	}

	if len(records) != len(vectors) {
		return fmt.Errorf("artifact length mismatch: %d chunks, %d vectors: %w",
			len(records), len(vectors), models.ErrCorruptStore)
	}

	chunks := make([]models.Chunk, len(records))
	for i, rec := range records {
		meta := rec.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		chunks[i] = models.Chunk{
			ID:        int64(i),
			Text:      rec.Text,
			Metadata:  meta,
			Embedding: vectors[i],
		}
	}
	if err := s.index.Build(vectors); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	s.chunks = chunks
	s.logger.Info("chunk store loaded", zap.Int("chunks", len(chunks)))
	return nil
}

// Add embeds text, appends the chunk, and persists the full store.
// On a persistence failure the append stays visible in memory and the error
// wraps ErrStorage so the caller can retry or accept the durability gap.
func (s *Store) Add(ctx context.Context, text string, metadata map[string]string) (int64, error) {
	ids, err := s.BatchAdd(ctx, []string{text}, []map[string]string{metadata})
	if len(ids) == 0 {
		return 0, err
	}
	return ids[0], err
}

// BatchAdd embeds all texts in one provider call and appends them in order.
// A nil metadatas defaults every chunk to empty metadata; a non-nil slice
// must match texts in length.
func (s *Store) BatchAdd(ctx context.Context, texts []string, metadatas []map[string]string) ([]int64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if metadatas != nil && len(metadatas) != len(texts) {
		return nil, fmt.Errorf("%d texts but %d metadata entries: %w",
			len(texts), len(metadatas), models.ErrInvalidArgument)
	}

	vectors, err := embedding.EmbedBatchWithTimeout(ctx, s.embedder, s.embedTimeout, texts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Index first: it validates dimensions, so a failure leaves both the
	// index and the chunk list untouched (all-or-nothing per call).
	if err := s.index.Add(vectors); err != nil {
		return nil, err
	}
	ids := make([]int64, len(texts))
	for i, text := range texts {
		id := int64(len(s.chunks))
		var meta map[string]string
		if metadatas != nil {
			meta = copyMetadata(metadatas[i])
		} else {
			meta = map[string]string{}
		}
		s.chunks = append(s.chunks, models.Chunk{
			ID:        id,
			Text:      text,
			Metadata:  meta,
			Embedding: vectors[i],
		})
		ids[i] = id
	}

	if err := s.persistLocked(); err != nil {
		s.logger.Warn("chunk store persistence failed; in-memory state is ahead of disk",
			zap.Int("chunks", len(s.chunks)), zap.Error(err))
		return ids, fmt.Errorf("persist %d chunk(s): %v: %w", len(s.chunks), err, models.ErrStorage)
	}
	return ids, nil
}

// persistLocked writes both artifacts crash-safely: each is written to a
// temporary file and renamed into place. Caller holds the write lock.
func (s *Store) persistLocked() error {
	for _, p := range []string{s.chunksPath, s.vectorsPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create store dir: %w", err)
			}
		}
	}

	records := make([]chunkRecord, len(s.chunks))
	vectors := make([][]float32, len(s.chunks))
	for i, c := range s.chunks {
		records[i] = chunkRecord{Text: c.Text, Metadata: c.Metadata}
		vectors[i] = c.Embedding
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}

	vectorsTmp := s.vectorsPath + ".tmp"
	f, err := os.Create(vectorsTmp)
	if err != nil {
		return fmt.Errorf("create vectors temp: %w", err)
	}
	if err := vector.WriteMatrix(f, s.index.Dimensions(), vectors); err != nil {
		_ = f.Close()
		_ = os.Remove(vectorsTmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(vectorsTmp)
		return fmt.Errorf("close vectors temp: %w", err)
	}

	chunksTmp := s.chunksPath + ".tmp"
	if err := os.WriteFile(chunksTmp, data, 0644); err != nil {
		_ = os.Remove(vectorsTmp)
		return fmt.Errorf("write chunks temp: %w", err)
	}

	if err := os.Rename(vectorsTmp, s.vectorsPath); err != nil {
		_ = os.Remove(vectorsTmp)
		_ = os.Remove(chunksTmp)
		return fmt.Errorf("replace vectors artifact: %w", err)
	}
	if err := os.Rename(chunksTmp, s.chunksPath); err != nil {
		_ = os.Remove(chunksTmp)
		return fmt.Errorf("replace chunks artifact: %w", err)
	}
	return nil
}

// Nearest returns up to k chunks closest to the query vector, ascending by
// distance, with positions resolved against the same snapshot the index
// answered from.
func (s *Store) Nearest(query []float32, k int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits, err := s.index.Query(query, k)
	if err != nil {
		return nil, err
	}
	neighbors := make([]Neighbor, 0, len(hits))
	for _, h := range hits {
		if h.Position >= len(s.chunks) {
			continue
		}
		neighbors = append(neighbors, Neighbor{Chunk: s.chunks[h.Position], Distance: h.Distance})
	}
	return neighbors, nil
}

// All returns an ordered snapshot of the stored chunks. The snapshot is
// read-only; callers must not mutate chunk metadata or embeddings.
func (s *Store) All() []models.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Len returns the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Metric returns the distance metric the store's index uses.
func (s *Store) Metric() vector.Metric {
	return s.index.Metric()
}

// Dimensions returns the embedding dimensionality of the store.
func (s *Store) Dimensions() int {
	return s.index.Dimensions()
}

func copyMetadata(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
