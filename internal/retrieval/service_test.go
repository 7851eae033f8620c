package retrieval

import (
	"context"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siestheapp/jester-remote/internal/embedding"
	"github.com/siestheapp/jester-remote/internal/store"
	"github.com/siestheapp/jester-remote/internal/vector"
)

// countingEmbedder wraps the mock embedder and counts provider calls.
type countingEmbedder struct {
	inner embedding.Embedder
	calls int64
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt64(&e.calls, 1)
	return e.inner.Embed(ctx, text)
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt64(&e.calls, 1)
	return e.inner.EmbedBatch(ctx, texts)
}

func (e *countingEmbedder) Dimensions() int { return e.inner.Dimensions() }
func (e *countingEmbedder) Close() error    { return e.inner.Close() }

func newTestService(t *testing.T, embedder embedding.Embedder) (*Service, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(embedder, store.Options{
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
	return NewService(st, embedder, time.Second, nil), st
}

func TestSearch_EmptyStoreSkipsEmbedder(t *testing.T) {
	embedder := &countingEmbedder{inner: embedding.NewMockEmbedder(16)}
	svc, _ := newTestService(t, embedder)

	results, err := svc.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatal(err)
	}
	if results != nil {
		t.Errorf("empty store should return nil results, got %v", results)
	}
	if atomic.LoadInt64(&embedder.calls) != 0 {
		t.Errorf("embedder called %d times on empty store, want 0", embedder.calls)
	}
}

func TestSearch_KZeroSkipsEmbedder(t *testing.T) {
	embedder := &countingEmbedder{inner: embedding.NewMockEmbedder(16)}
	svc, st := newTestService(t, embedder)
	if _, err := st.Add(context.Background(), "some chunk", nil); err != nil {
		t.Fatal(err)
	}
	atomic.StoreInt64(&embedder.calls, 0)

	results, err := svc.Search(context.Background(), "query", 0)
	if err != nil || results != nil {
		t.Errorf("k=0 = %v, %v; want nil, nil", results, err)
	}
	if atomic.LoadInt64(&embedder.calls) != 0 {
		t.Errorf("embedder called %d times for k=0, want 0", embedder.calls)
	}
}

func TestSearch_RanksExactTextFirst(t *testing.T) {
	embedder := embedding.NewMockEmbedder(16)
	svc, st := newTestService(t, embedder)
	ctx := context.Background()
	texts := []string{
		"size chart for slim fit shirts",
		"how to measure sleeve length",
		"care instructions for wool",
	}
	if _, err := st.BatchAdd(ctx, texts, nil); err != nil {
		t.Fatal(err)
	}

	results, err := svc.Search(ctx, texts[1], 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Text != texts[1] {
		t.Errorf("top result = %q, want %q", results[0].Text, texts[1])
	}
	// Identical text embeds to distance 0, so similarity 1/(1+0) = 1.
	if math.Abs(results[0].Similarity-1) > 1e-9 {
		t.Errorf("self similarity = %f, want 1", results[0].Similarity)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("similarities not descending at %d: %v", i, results)
		}
	}
}

func TestSearch_Deterministic(t *testing.T) {
	embedder := embedding.NewMockEmbedder(16)
	svc, st := newTestService(t, embedder)
	ctx := context.Background()
	if _, err := st.BatchAdd(ctx, []string{"a", "b", "c", "d"}, nil); err != nil {
		t.Fatal(err)
	}

	first, err := svc.Search(ctx, "measurement", 4)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Search(ctx, "measurement", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("result lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text || first[i].Similarity != second[i].Similarity {
			t.Errorf("result %d differs between identical searches", i)
		}
	}
}

func TestSearch_KLargerThanStore(t *testing.T) {
	embedder := embedding.NewMockEmbedder(16)
	svc, st := newTestService(t, embedder)
	ctx := context.Background()
	if _, err := st.BatchAdd(ctx, []string{"only", "two"}, nil); err != nil {
		t.Fatal(err)
	}
	results, err := svc.Search(ctx, "query", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestToSimilarity(t *testing.T) {
	if got := toSimilarity(vector.MetricL2, 0); got != 1 {
		t.Errorf("l2 distance 0 -> %f, want 1", got)
	}
	if got := toSimilarity(vector.MetricL2, 1); got != 0.5 {
		t.Errorf("l2 distance 1 -> %f, want 0.5", got)
	}
	if got := toSimilarity(vector.MetricCosine, 0.25); got != 0.75 {
		t.Errorf("cosine distance 0.25 -> %f, want 0.75", got)
	}
}
