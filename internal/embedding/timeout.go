package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/siestheapp/jester-remote/internal/models"
)

// EmbedWithTimeout embeds one text under the given timeout, classifying a
// deadline hit as a dependency timeout. A timeout of 0 means no limit.
func EmbedWithTimeout(ctx context.Context, e Embedder, timeout time.Duration, text string) ([]float32, error) {
	vecs, err := EmbedBatchWithTimeout(ctx, e, timeout, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatchWithTimeout embeds texts in one provider call under the given
// timeout. Provider errors already carrying the dependency taxonomy pass
// through unchanged.
func EmbedBatchWithTimeout(ctx context.Context, e Embedder, timeout time.Duration, texts []string) ([][]float32, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	vecs, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, models.ErrDependencyTimeout) || errors.Is(err, models.ErrDependencyUnavailable) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding %d text(s): %w", len(texts), models.ErrDependencyTimeout)
		}
		return nil, fmt.Errorf("embedding %d text(s): %v: %w", len(texts), err, models.ErrDependencyUnavailable)
	}
	return vecs, nil
}
