package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/siestheapp/jester-remote/internal/embedding"
	"github.com/siestheapp/jester-remote/internal/models"
	"github.com/siestheapp/jester-remote/internal/vector"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	st, err := New(embedding.NewMockEmbedder(16), Options{
		ChunksPath:  filepath.Join(dir, "chunks.json"),
		VectorsPath: filepath.Join(dir, "embeddings.bin"),
		Metric:      vector.MetricL2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Load(); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestStore_EmptyLoad(t *testing.T) {
	st := newTestStore(t)
	if st.Len() != 0 {
		t.Errorf("fresh store Len = %d, want 0", st.Len())
	}
}

func TestStore_AddAndNearest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	texts := []string{
		"chest width is measured across the garment",
		"inseam runs from crotch to hem",
		"collar size in inches",
	}
	ids, err := st.BatchAdd(ctx, texts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("got %d ids, want 3", len(ids))
	}
	for i, id := range ids {
		if id != int64(i) {
			t.Errorf("id[%d] = %d, want %d", i, id, i)
		}
	}

	// A stored text queried by its own embedding must come back first at
	// distance zero.
	queryVec, err := st.embedder.Embed(ctx, texts[1])
	if err != nil {
		t.Fatal(err)
	}
	neighbors, err := st.Nearest(queryVec, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("got %d neighbors, want 2", len(neighbors))
	}
	if neighbors[0].Chunk.Text != texts[1] {
		t.Errorf("nearest = %q, want %q", neighbors[0].Chunk.Text, texts[1])
	}
	if neighbors[0].Distance > 1e-9 {
		t.Errorf("self distance = %f, want ~0", neighbors[0].Distance)
	}
}

func TestStore_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		ChunksPath:  filepath.Join(dir, "chunks.json"),
		VectorsPath: filepath.Join(dir, "embeddings.bin"),
		Metric:      vector.MetricL2,
	}
	embedder := embedding.NewMockEmbedder(16)

	st, err := New(embedder, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Load(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := st.BatchAdd(ctx, []string{"alpha", "beta"}, []map[string]string{
		{"source": "a.txt"},
		{"source": "b.txt"},
	}); err != nil {
		t.Fatal(err)
	}

	reloaded, err := New(embedder, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("reloaded Len = %d, want 2", reloaded.Len())
	}
	chunks := reloaded.All()
	if chunks[0].Text != "alpha" || chunks[1].Text != "beta" {
		t.Errorf("reloaded texts: %q, %q", chunks[0].Text, chunks[1].Text)
	}
	if chunks[0].Metadata["source"] != "a.txt" {
		t.Errorf("reloaded metadata: %v", chunks[0].Metadata)
	}

	// Reloaded store must answer queries identically.
	queryVec, _ := embedder.Embed(ctx, "beta")
	neighbors, err := reloaded.Nearest(queryVec, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbors) != 1 || neighbors[0].Chunk.Text != "beta" {
		t.Errorf("reloaded nearest: %+v", neighbors)
	}
}

func TestStore_MissingArtifactIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		ChunksPath:  filepath.Join(dir, "chunks.json"),
		VectorsPath: filepath.Join(dir, "embeddings.bin"),
		Metric:      vector.MetricL2,
	}
	embedder := embedding.NewMockEmbedder(16)
	st, err := New(embedder, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Load(); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Add(context.Background(), "hello", nil); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(opts.VectorsPath); err != nil {
		t.Fatal(err)
	}

	st2, err := New(embedder, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := st2.Load(); !errors.Is(err, models.ErrCorruptStore) {
		t.Errorf("Load with missing vectors artifact: %v, want ErrCorruptStore", err)
	}
}

func TestStore_MalformedChunksIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		ChunksPath:  filepath.Join(dir, "chunks.json"),
		VectorsPath: filepath.Join(dir, "embeddings.bin"),
		Metric:      vector.MetricL2,
	}
	if err := os.WriteFile(opts.ChunksPath, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(opts.VectorsPath, []byte{0}, 0644); err != nil {
		t.Fatal(err)
	}
	st, err := New(embedding.NewMockEmbedder(16), opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Load(); !errors.Is(err, models.ErrCorruptStore) {
		t.Errorf("Load with malformed chunks artifact: %v, want ErrCorruptStore", err)
	}
}

func TestStore_PersistFailureKeepsChunkVisible(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		ChunksPath:  filepath.Join(dir, "chunks.json"),
		VectorsPath: filepath.Join(dir, "embeddings.bin"),
		Metric:      vector.MetricL2,
	}
	embedder := embedding.NewMockEmbedder(16)
	st, err := New(embedder, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Load(); err != nil {
		t.Fatal(err)
	}
	// Occupy the chunks artifact path with a directory so the rename into
	// place cannot succeed.
	if err := os.Mkdir(opts.ChunksPath, 0755); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	ids, err := st.BatchAdd(ctx, []string{"alpha"}, nil)
	if !errors.Is(err, models.ErrStorage) {
		t.Fatalf("persist failure = %v, want ErrStorage", err)
	}
	if len(ids) != 1 || ids[0] != 0 {
		t.Errorf("ids = %v, want [0] even when persistence fails", ids)
	}

	// The append stays visible in memory and searchable.
	if st.Len() != 1 {
		t.Errorf("Len = %d, want 1", st.Len())
	}
	queryVec, err := embedder.Embed(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	neighbors, err := st.Nearest(queryVec, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(neighbors) != 1 || neighbors[0].Chunk.Text != "alpha" {
		t.Errorf("unpersisted chunk not searchable: %+v", neighbors)
	}
}

func TestStore_ArtifactLengthMismatchIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		ChunksPath:  filepath.Join(dir, "chunks.json"),
		VectorsPath: filepath.Join(dir, "embeddings.bin"),
		Metric:      vector.MetricL2,
	}
	embedder := embedding.NewMockEmbedder(16)
	st, err := New(embedder, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Load(); err != nil {
		t.Fatal(err)
	}
	if _, err := st.BatchAdd(context.Background(), []string{"alpha", "beta"}, nil); err != nil {
		t.Fatal(err)
	}

	// One record against two stored vectors.
	if err := os.WriteFile(opts.ChunksPath, []byte(`[{"text":"alpha","metadata":{}}]`), 0644); err != nil {
		t.Fatal(err)
	}
	st2, err := New(embedder, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := st2.Load(); !errors.Is(err, models.ErrCorruptStore) {
		t.Errorf("Load with mismatched artifact lengths: %v, want ErrCorruptStore", err)
	}
}

func TestStore_BatchAddMetadataMismatch(t *testing.T) {
	st := newTestStore(t)
	_, err := st.BatchAdd(context.Background(),
		[]string{"a", "b"},
		[]map[string]string{{"k": "v"}})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("metadata length mismatch: %v, want ErrInvalidArgument", err)
	}
	if st.Len() != 0 {
		t.Errorf("failed batch must not grow store: Len = %d", st.Len())
	}
}

func TestStore_BatchAddEmpty(t *testing.T) {
	st := newTestStore(t)
	ids, err := st.BatchAdd(context.Background(), nil, nil)
	if err != nil || ids != nil {
		t.Errorf("empty batch = %v, %v; want nil, nil", ids, err)
	}
}

func TestStore_NilMetadataDefaultsEmpty(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.BatchAdd(context.Background(), []string{"a"}, nil); err != nil {
		t.Fatal(err)
	}
	chunks := st.All()
	if chunks[0].Metadata == nil {
		t.Error("metadata should default to empty map, not nil")
	}
}
