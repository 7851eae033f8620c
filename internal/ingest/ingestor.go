package ingest

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siestheapp/jester-remote/internal/extract"
	"github.com/siestheapp/jester-remote/internal/store"
)

// Ingestor chunks documents and appends them to the chunk store. It consumes
// already-extracted text; calling the vision service is the upstream
// collaborator's job, never ours.
type Ingestor struct {
	store        *store.Store
	extractor    *extract.Extractor
	maxChunkSize int
	logger       *zap.Logger
}

// NewIngestor creates an ingestor writing to st, chunking at maxChunkSize
// characters.
func NewIngestor(st *store.Store, maxChunkSize int, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		store:        st,
		extractor:    extract.NewExtractor(),
		maxChunkSize: maxChunkSize,
		logger:       logger,
	}
}

// IngestText chunks text and batch-adds the chunks with copies of metadata.
// Every chunk of one document shares a generated document id. Returns the
// number of chunks stored.
func (ing *Ingestor) IngestText(ctx context.Context, text string, metadata map[string]string) (int, error) {
	chunks := Chunk(text, ing.maxChunkSize)
	if len(chunks) == 0 {
		return 0, nil
	}

	docID := uuid.New().String()
	metadatas := make([]map[string]string, len(chunks))
	for i := range chunks {
		meta := make(map[string]string, len(metadata)+2)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["document_id"] = docID
		meta["chunk_index"] = fmt.Sprintf("%d", i)
		metadatas[i] = meta
	}

	ids, err := ing.store.BatchAdd(ctx, chunks, metadatas)
	if err != nil {
		return len(ids), err
	}
	ing.logger.Info("document ingested",
		zap.String("document_id", docID),
		zap.Int("chunks", len(ids)))
	return len(ids), nil
}

// IngestFile extracts text from a research document on disk and ingests it.
// Supported formats: plain text/markdown, PDF, DOCX, and XLSX (size charts
// are commonly exported as spreadsheets).
func (ing *Ingestor) IngestFile(ctx context.Context, path string, metadata map[string]string) (int, error) {
	text, err := ing.extractor.Extract(path)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", path, err)
	}
	meta := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	if _, ok := meta["type"]; !ok {
		meta["type"] = "research"
	}
	meta["source"] = filepath.Base(path)
	return ing.IngestText(ctx, text, meta)
}
