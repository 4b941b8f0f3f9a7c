package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
)

// batchSizer reports how many texts a backend sends per request.
// Zero means a batch of any size is one request.
type batchSizer interface {
	BatchSize() int
}

// RateLimited wraps an EmbeddingService so each backend request waits for
// a token. Batches are split to the backend's request size and every
// request takes its own token.
type RateLimited struct {
	next    ports.EmbeddingService
	limiter *rate.Limiter
	size    int
}

// NewRateLimited limits next to rps requests per second with the given
// burst. A non-positive rps disables limiting and returns next unchanged.
func NewRateLimited(next ports.EmbeddingService, rps float64, burst int) ports.EmbeddingService {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	var size int
	if b, ok := next.(batchSizer); ok {
		size = b.BatchSize()
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		size:    size,
	}
}

// Model returns the wrapped model name.
func (r *RateLimited) Model() string {
	return r.next.Model()
}

// Embed waits for the limiter, then embeds.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Embed(ctx, text)
}

// EmbedBatch embeds texts one backend request at a time, waiting for the
// limiter before each.
func (r *RateLimited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return r.next.EmbedBatch(ctx, texts)
	}
	size := r.size
	if size <= 0 {
		size = len(texts)
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		out, err := r.next.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(out) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(out))
		}
		embeddings = append(embeddings, out...)
	}
	return embeddings, nil
}
