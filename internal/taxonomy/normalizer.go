package taxonomy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/siestheapp/jester-remote/internal/embedding"
	"github.com/siestheapp/jester-remote/internal/metrics"
	"github.com/siestheapp/jester-remote/internal/models"
	"github.com/siestheapp/jester-remote/internal/vector"
)

// Strategy selects how fuzzy (non-exact) lookups are scored.
type Strategy string

const (
	// StrategyRatio scores by character sequence similarity (no external calls).
	StrategyRatio Strategy = "ratio"
	// StrategyEmbedding scores by cosine similarity against precomputed
	// variant embeddings.
	StrategyEmbedding Strategy = "embedding"
)

// Default similarity thresholds per strategy. Character ratios run higher
// than embedding similarities for the same inputs, hence the different bars.
const (
	DefaultRatioThreshold     = 0.85
	DefaultEmbeddingThreshold = 0.75
)

// ParseStrategy parses a strategy name from config.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyRatio, StrategyEmbedding:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown normalizer strategy %q (want ratio or embedding)", s)
	}
}

// variantEntry is one known variant in deterministic lookup order:
// categories in registration order, variants in registration order within
// each category. Ties on score resolve to the earliest entry.
type variantEntry struct {
	variant   string
	canonical string
}

// Normalizer maps arbitrary measurement labels to canonical categories.
// Lookups are exact first (score 1.0), then fuzzy by the configured
// strategy. The taxonomy may be extended at runtime; the reverse lookup
// table is rebuilt atomically so readers never observe a partial rebuild.
type Normalizer struct {
	strategy     Strategy
	embedder     embedding.Embedder
	embedTimeout time.Duration
	logger       *zap.Logger

	mu          sync.RWMutex
	categories  []Category
	reverse     map[string]string    // variant -> canonical
	entries     []variantEntry       // deterministic fuzzy scan order
	variantVecs map[string][]float32 // variant -> embedding (StrategyEmbedding)
}

// Options configures a Normalizer. Embedder is required for
// StrategyEmbedding and unused otherwise.
type Options struct {
	Strategy     Strategy
	Embedder     embedding.Embedder
	EmbedTimeout time.Duration
	Logger       *zap.Logger
}

// NewNormalizer builds a normalizer over the seed categories. With the
// embedding strategy, embeddings for every variant are precomputed here in
// one batch call.
func NewNormalizer(ctx context.Context, seed []Category, opts Options) (*Normalizer, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyRatio
	}
	if opts.Strategy == StrategyEmbedding && opts.Embedder == nil {
		return nil, fmt.Errorf("embedding strategy requires an embedder: %w", models.ErrInvalidArgument)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cats, err := normalizeCategories(seed)
	if err != nil {
		return nil, err
	}

	n := &Normalizer{
		strategy:     opts.Strategy,
		embedder:     opts.Embedder,
		embedTimeout: opts.EmbedTimeout,
		logger:       opts.Logger,
	}
	reverse, entries := buildLookup(cats)

	var vecs map[string][]float32
	if n.strategy == StrategyEmbedding {
		vecs, err = n.embedVariants(ctx, entries, nil)
		if err != nil {
			return nil, err
		}
	}

	n.categories = cats
	n.reverse = reverse
	n.entries = entries
	n.variantVecs = vecs
	return n, nil
}

// DefaultThreshold returns the strategy's default similarity threshold.
func (n *Normalizer) DefaultThreshold() float64 {
	if n.strategy == StrategyEmbedding {
		return DefaultEmbeddingThreshold
	}
	return DefaultRatioThreshold
}

// Map resolves a measurement label to its canonical category, or to nil when
// nothing scores at or above threshold. A threshold of 0 uses the strategy
// default; thresholds outside [0,1] are invalid. An input that normalizes to
// the empty string is no match, not an error.
func (n *Normalizer) Map(ctx context.Context, label string, threshold float64) (*models.MatchResult, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold %v outside [0,1]: %w", threshold, models.ErrInvalidArgument)
	}
	if threshold == 0 {
		threshold = n.DefaultThreshold()
	}

	normalized := NormalizeLabel(label)
	if normalized == "" {
		metrics.MeasurementMapsTotal.WithLabelValues("no_match").Inc()
		return nil, nil
	}

	n.mu.RLock()
	canonical, exact := n.reverse[normalized]
	entries := n.entries
	vecs := n.variantVecs
	n.mu.RUnlock()

	if exact {
		metrics.MeasurementMapsTotal.WithLabelValues("exact").Inc()
		return &models.MatchResult{Canonical: canonical, Score: 1.0, MatchedVariant: normalized}, nil
	}

	var best *models.MatchResult
	switch n.strategy {
	case StrategyEmbedding:
		queryVec, err := embedding.EmbedWithTimeout(ctx, n.embedder, n.embedTimeout, normalized)
		if err != nil {
			return nil, err
		}
		best = bestBy(entries, func(e variantEntry) float64 {
			return clamp01(vector.Cosine(queryVec, vecs[e.variant]))
		})
	default:
		best = bestBy(entries, func(e variantEntry) float64 {
			return SequenceRatio(normalized, e.variant)
		})
	}

	if best == nil || best.Score < threshold {
		metrics.MeasurementMapsTotal.WithLabelValues("no_match").Inc()
		return nil, nil
	}
	metrics.MeasurementMapsTotal.WithLabelValues("fuzzy").Inc()
	n.logger.Debug("fuzzy measurement match",
		zap.String("label", normalized),
		zap.String("canonical", best.Canonical),
		zap.Float64("score", best.Score))
	return best, nil
}

// bestBy scans entries in registration order and keeps the strictly highest
// score, so ties resolve to the earliest-registered category and variant.
func bestBy(entries []variantEntry, score func(variantEntry) float64) *models.MatchResult {
	var best *models.MatchResult
	for _, e := range entries {
		s := score(e)
		if best == nil || s > best.Score {
			best = &models.MatchResult{Canonical: e.canonical, Score: s, MatchedVariant: e.variant}
		}
	}
	return best
}

// MapBatch maps labels sequentially. Result i corresponds to labels[i];
// a nil element means no match.
func (n *Normalizer) MapBatch(ctx context.Context, labels []string, threshold float64) ([]*models.MatchResult, error) {
	results := make([]*models.MatchResult, len(labels))
	for i, label := range labels {
		res, err := n.Map(ctx, label, threshold)
		if err != nil {
			return nil, err
		}
		results[i] = res
	}
	return results, nil
}

// MapBatchConcurrent maps labels in parallel for throughput. Results are in
// input order and element-for-element identical to MapBatch.
func (n *Normalizer) MapBatchConcurrent(ctx context.Context, labels []string, threshold float64) ([]*models.MatchResult, error) {
	results := make([]*models.MatchResult, len(labels))
	errs := make([]error, len(labels))
	var wg sync.WaitGroup
	for i, label := range labels {
		wg.Add(1)
		go func(i int, label string) {
			defer wg.Done()
			results[i], errs[i] = n.Map(ctx, label, threshold)
		}(i, label)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// AddOrUpdateCategory merges a category into the taxonomy. New variants must
// not already belong to a different category. The lookup tables (and variant
// embeddings under the embedding strategy) are rebuilt and swapped in
// atomically relative to concurrent readers.
func (n *Normalizer) AddOrUpdateCategory(ctx context.Context, name string, variants []string) error {
	name = NormalizeLabel(name)
	if name == "" {
		return fmt.Errorf("empty category name: %w", models.ErrInvalidArgument)
	}

	n.mu.RLock()
	merged := make([]Category, len(n.categories))
	copy(merged, n.categories)
	oldVecs := n.variantVecs
	n.mu.RUnlock()

	found := false
	for i, cat := range merged {
		if cat.Name == name {
			combined := append(append([]string{}, cat.Variants...), variants...)
			merged[i] = Category{Name: name, Variants: combined}
			found = true
			break
		}
	}
	if !found {
		merged = append(merged, Category{Name: name, Variants: variants})
	}

	cats, err := normalizeCategories(merged)
	if err != nil {
		return err
	}
	reverse, entries := buildLookup(cats)

	var vecs map[string][]float32
	if n.strategy == StrategyEmbedding {
		vecs, err = n.embedVariants(ctx, entries, oldVecs)
		if err != nil {
			return err
		}
	}

	n.mu.Lock()
	n.categories = cats
	n.reverse = reverse
	n.entries = entries
	n.variantVecs = vecs
	n.mu.Unlock()
	n.logger.Info("taxonomy updated", zap.String("category", name), zap.Int("categories", len(cats)))
	return nil
}

// Categories returns the canonical category names in registration order.
func (n *Normalizer) Categories() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, len(n.categories))
	for i, cat := range n.categories {
		names[i] = cat.Name
	}
	return names
}

// Mappings returns a copy of the full taxonomy in registration order.
func (n *Normalizer) Mappings() []Category {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Category, len(n.categories))
	for i, cat := range n.categories {
		out[i] = Category{Name: cat.Name, Variants: append([]string{}, cat.Variants...)}
	}
	return out
}

// embedVariants returns an embedding per variant, reusing prior vectors and
// batching only the variants not embedded before.
func (n *Normalizer) embedVariants(ctx context.Context, entries []variantEntry, prior map[string][]float32) (map[string][]float32, error) {
	vecs := make(map[string][]float32, len(entries))
	var missing []string
	for _, e := range entries {
		if v, ok := prior[e.variant]; ok {
			vecs[e.variant] = v
		} else {
			missing = append(missing, e.variant)
		}
	}
	if len(missing) == 0 {
		return vecs, nil
	}
	embedded, err := embedding.EmbedBatchWithTimeout(ctx, n.embedder, n.embedTimeout, missing)
	if err != nil {
		return nil, err
	}
	for i, variant := range missing {
		vecs[variant] = embedded[i]
	}
	return vecs, nil
}

// buildLookup derives the reverse table and deterministic scan order from a
// validated category list.
func buildLookup(cats []Category) (map[string]string, []variantEntry) {
	reverse := make(map[string]string)
	var entries []variantEntry
	for _, cat := range cats {
		for _, v := range cat.Variants {
			reverse[v] = cat.Name
			entries = append(entries, variantEntry{variant: v, canonical: cat.Name})
		}
	}
	return reverse, entries
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
