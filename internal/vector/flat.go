package vector

import (
	"fmt"
	"sort"
	"sync"
)

// FlatIndex is a brute-force nearest-neighbor index over ordered vectors.
// Vector positions mirror chunk store positions; the index is a derived,
// rebuildable cache, never independently authoritative.
type FlatIndex struct {
	dimensions int
	metric     Metric
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex creates a flat index with the given dimension and metric.
func NewFlatIndex(dimensions int, metric Metric) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if metric != MetricL2 && metric != MetricCosine {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	return &FlatIndex{
		dimensions: dimensions,
		metric:     metric,
		vectors:    make([][]float32, 0),
	}, nil
}

// Build replaces the index contents with exactly vectors, in order.
// Used after a bulk load or bulk add.
func (f *FlatIndex) Build(vectors [][]float32) error {
	replacement := make([][]float32, 0, len(vectors))
	for i, v := range vectors {
		if len(v) != f.dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(v), f.dimensions)
		}
		vec := make([]float32, f.dimensions)
		copy(vec, v)
		replacement = append(replacement, vec)
	}
	f.mu.Lock()
	f.vectors = replacement
	f.mu.Unlock()
	return nil
}

// Add appends vectors in order.
func (f *FlatIndex) Add(vectors [][]float32) error {
	appended := make([][]float32, 0, len(vectors))
	for i, v := range vectors {
		if len(v) != f.dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(v), f.dimensions)
		}
		vec := make([]float32, f.dimensions)
		copy(vec, v)
		appended = append(appended, vec)
	}
	f.mu.Lock()
	f.vectors = append(f.vectors, appended...)
	f.mu.Unlock()
	return nil
}

// Query returns up to k nearest neighbors ascending by distance.
// Ties are broken by insertion order (lower position wins). An empty index
// or k <= 0 yields an empty result, never an error.
func (f *FlatIndex) Query(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}
	hits := make([]Hit, len(f.vectors))
	for i, vec := range f.vectors {
		hits[i] = Hit{Position: i, Distance: f.distance(query, vec)}
	}
	// Stable sort keeps equal distances in position order.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func (f *FlatIndex) distance(a, b []float32) float64 {
	switch f.metric {
	case MetricCosine:
		return 1 - Cosine(a, b)
	default:
		return L2Squared(a, b)
	}
}

// Len returns the number of vectors in the index.
func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Dimensions returns the vector dimensionality.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Metric returns the distance metric the index was created with.
func (f *FlatIndex) Metric() Metric {
	return f.metric
}
