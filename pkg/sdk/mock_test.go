package knnsearch

import (
	"context"
	"errors"

	"github.com/kailas-cloud/knnsearch/internal/domain"
	"github.com/kailas-cloud/knnsearch/internal/embedtest"
)

// keywordEmbedder exposes the deterministic test embedder through the public interface.
type keywordEmbedder struct {
	inner *embedtest.Keyword
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{inner: embedtest.NewCatalog()}
}

func (e *keywordEmbedder) Embed(ctx context.Context, texts []string, intent Intent, dim int) (EmbeddingResult, error) {
	r, err := e.inner.Embed(ctx, texts, domain.TaskIntent(intent), dim)
	if err != nil {
		return EmbeddingResult{}, err
	}
	return EmbeddingResult{Embeddings: r.Embeddings, PromptTokens: r.PromptTokens, TotalTokens: r.TotalTokens}, nil
}

type failingEmbedder struct{ err error }

func (e *failingEmbedder) Embed(context.Context, []string, Intent, int) (EmbeddingResult, error) {
	return EmbeddingResult{}, e.err
}

var errProviderDown = errors.New("provider down")
