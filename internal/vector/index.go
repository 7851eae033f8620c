// Package vector provides a flat similarity index over ordered embedding vectors.
package vector

import "fmt"

// Metric is the distance metric an index uses. It is fixed for the lifetime
// of an index (and of the store built on it).
type Metric string

const (
	// MetricL2 is squared Euclidean distance.
	MetricL2 Metric = "l2"
	// MetricCosine is cosine distance (1 - cosine similarity).
	MetricCosine Metric = "cosine"
)

// ParseMetric parses a metric name from config.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricL2, MetricCosine:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown metric %q (want l2 or cosine)", s)
	}
}

// Hit is a single nearest-neighbor result. Position is the vector's insertion
// position, which equals the owning chunk's position in the chunk store.
type Hit struct {
	Position int
	Distance float64
}
