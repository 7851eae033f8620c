package vector

import (
	"math"
	"testing"
)

func TestFlatIndex_QueryOrdering(t *testing.T) {
	idx, err := NewFlatIndex(2, MetricL2)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Build([][]float32{
		{10, 0}, // far
		{1, 0},  // near
		{5, 0},  // middle
	}); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Query([]float32{0, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	wantOrder := []int{1, 2, 0}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	for i, want := range wantOrder {
		if hits[i].Position != want {
			t.Errorf("hit %d position = %d, want %d", i, hits[i].Position, want)
		}
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Errorf("distances not ascending at %d: %v", i, hits)
		}
	}
}

func TestFlatIndex_TieBreakByPosition(t *testing.T) {
	idx, err := NewFlatIndex(2, MetricL2)
	if err != nil {
		t.Fatal(err)
	}
	// Equidistant from the origin; earlier position must win.
	if err := idx.Build([][]float32{
		{0, 3},
		{3, 0},
		{-3, 0},
	}); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Query([]float32{0, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i, h := range hits {
		if h.Position != i {
			t.Errorf("tie-break broken: hit %d position = %d", i, h.Position)
		}
	}
}

func TestFlatIndex_KBounds(t *testing.T) {
	idx, _ := NewFlatIndex(1, MetricL2)
	_ = idx.Build([][]float32{{1}, {2}})

	hits, err := idx.Query([]float32{0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("k larger than index should cap: got %d hits", len(hits))
	}

	hits, err = idx.Query([]float32{0}, 0)
	if err != nil || hits != nil {
		t.Errorf("k=0 should return nil, nil; got %v, %v", hits, err)
	}

	hits, err = idx.Query([]float32{0}, -1)
	if err != nil || hits != nil {
		t.Errorf("k<0 should return nil, nil; got %v, %v", hits, err)
	}
}

func TestFlatIndex_EmptyIndex(t *testing.T) {
	idx, _ := NewFlatIndex(3, MetricL2)
	hits, err := idx.Query([]float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if hits != nil {
		t.Errorf("empty index should return nil, got %v", hits)
	}
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewFlatIndex(3, MetricL2)
	if err := idx.Add([][]float32{{1, 2}}); err == nil {
		t.Error("Add with wrong dimensions should fail")
	}
	if _, err := idx.Query([]float32{1, 2}, 1); err == nil {
		t.Error("Query with wrong dimensions should fail")
	}
	if idx.Len() != 0 {
		t.Errorf("failed Add must not grow index: len=%d", idx.Len())
	}
}

func TestFlatIndex_CosineMetric(t *testing.T) {
	idx, err := NewFlatIndex(2, MetricCosine)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Build([][]float32{
		{0, 1}, // orthogonal
		{1, 0}, // identical direction
	}); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Query([]float32{2, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Position != 1 {
		t.Errorf("same-direction vector should rank first, got position %d", hits[0].Position)
	}
	if math.Abs(hits[0].Distance) > 1e-6 {
		t.Errorf("same-direction cosine distance = %f, want 0", hits[0].Distance)
	}
	if math.Abs(hits[1].Distance-1) > 1e-6 {
		t.Errorf("orthogonal cosine distance = %f, want 1", hits[1].Distance)
	}
}

func TestNewFlatIndex_Invalid(t *testing.T) {
	if _, err := NewFlatIndex(0, MetricL2); err == nil {
		t.Error("zero dimensions should fail")
	}
	if _, err := NewFlatIndex(3, Metric("manhattan")); err == nil {
		t.Error("unknown metric should fail")
	}
}

func TestParseMetric(t *testing.T) {
	if m, err := ParseMetric("l2"); err != nil || m != MetricL2 {
		t.Errorf("ParseMetric(l2) = %v, %v", m, err)
	}
	if m, err := ParseMetric("cosine"); err != nil || m != MetricCosine {
		t.Errorf("ParseMetric(cosine) = %v, %v", m, err)
	}
	if _, err := ParseMetric("dot"); err == nil {
		t.Error("unknown metric name should fail")
	}
}

func TestL2Squared(t *testing.T) {
	got := L2Squared([]float32{1, 2}, []float32{4, 6})
	if math.Abs(got-25) > 1e-6 {
		t.Errorf("L2Squared = %f, want 25", got)
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("cosine with zero vector = %f, want 0", got)
	}
}
