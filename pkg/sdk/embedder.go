package knnsearch

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/knnsearch/internal/domain"
)

// Intent tells the embedder whether vectors are stored or used as queries.
type Intent int

// Embedding intents.
const (
	IntentDocument Intent = Intent(domain.IntentDocument)
	IntentQuery    Intent = Intent(domain.IntentQuery)
)

// Embedder converts texts to vectors of the requested dimensionality.
// Returning no embeddings is valid: documents are then stored without a vector.
type Embedder interface {
	Embed(ctx context.Context, texts []string, intent Intent, dim int) (EmbeddingResult, error)
}

// EmbeddingResult carries vectors in input order and token counts.
type EmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// embedderAdapter wraps the public Embedder to satisfy domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(
	ctx context.Context, texts []string, intent domain.TaskIntent, dim int,
) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, texts, Intent(intent), dim)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingProvider, err)
	}
	return domain.EmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}
