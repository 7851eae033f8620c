package embedding

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	a, err := e.Embed(ctx, "chest width")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(ctx, "chest width")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 {
		t.Fatalf("dimensions = %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same text gave different embeddings at %d", i)
		}
	}
	c, err := e.Embed(ctx, "sleeve length")
	if err != nil {
		t.Fatal(err)
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts gave identical embeddings")
	}
}

func TestMockEmbedder_UnitNorm(t *testing.T) {
	e := NewMockEmbedder(32)
	v, err := e.Embed(context.Background(), "waist")
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("squared norm = %f, want 1", sum)
	}
}

func TestMockEmbedder_BatchOrder(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	texts := []string{"a", "b", "c"}
	batch, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 3 {
		t.Fatalf("got %d embeddings, want 3", len(batch))
	}
	for i, text := range texts {
		single, _ := e.Embed(ctx, text)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch[%d] differs from Embed(%q)", i, text)
			}
		}
	}
}

func TestMockEmbedder_DefaultDimensions(t *testing.T) {
	e := NewMockEmbedder(0)
	if e.Dimensions() != 384 {
		t.Errorf("default dimensions = %d, want 384", e.Dimensions())
	}
}
