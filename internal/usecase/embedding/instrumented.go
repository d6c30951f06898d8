package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/domain"
)

// DefaultMaxAPIBatchSize is the largest number of texts sent in one provider request.
const DefaultMaxAPIBatchSize = 256

// InstrumentedEmbedder wraps Embedder with logging and request chunking.
// Transport metrics (requests, duration, tokens) are recorded in the transports.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with logging and chunking.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		logger:   logger,
	}
}

// Embed splits texts into provider-sized chunks and logs the outcome.
// If any chunk comes back without vectors the whole result is empty.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, texts []string, intent domain.TaskIntent, dim int,
) (domain.EmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.EmbeddingResult{}, nil
	}

	start := time.Now()

	var out domain.EmbeddingResult
	for offset := 0; offset < len(texts); offset += DefaultMaxAPIBatchSize {
		end := min(offset+DefaultMaxAPIBatchSize, len(texts))
		chunk := texts[offset:end]

		res, err := p.inner.Embed(ctx, chunk, intent, dim)
		if err != nil {
			p.logger.Error("Embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Stringer("intent", intent),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
		}
		if len(res.Embeddings) == 0 {
			p.logger.Warn("Embedding provider returned no vectors",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Stringer("intent", intent),
				zap.Int("chunk_size", len(chunk)),
			)
			return domain.EmbeddingResult{}, nil
		}

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	dims := 0
	if vec, ok := out.First(); ok {
		dims = len(vec)
	}
	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Stringer("intent", intent),
		zap.Duration("duration", time.Since(start)),
		zap.Int("texts", len(texts)),
		zap.Int("dimensions", dims),
		zap.Int("prompt_tokens", out.PromptTokens),
		zap.Int("total_tokens", out.TotalTokens),
	)

	return out, nil
}
