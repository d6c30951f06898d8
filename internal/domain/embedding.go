package domain

import "context"

// TaskIntent tells the provider whether a vector is stored or queried against.
type TaskIntent int

const (
	// IntentDocument produces vectors for storage.
	IntentDocument TaskIntent = iota
	// IntentQuery produces vectors for search input.
	IntentQuery
)

func (t TaskIntent) String() string {
	switch t {
	case IntentDocument:
		return "document"
	case IntentQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Embedder is the provider boundary shared by the indexing and query paths.
// An empty Embeddings slice is a valid answer, not an error.
type Embedder interface {
	Embed(ctx context.Context, texts []string, intent TaskIntent, dim int) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries vectors and token usage through the decorator chain.
type EmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// First returns the first vector, if any.
func (r EmbeddingResult) First() ([]float32, bool) {
	if len(r.Embeddings) == 0 || len(r.Embeddings[0]) == 0 {
		return nil, false
	}
	return r.Embeddings[0], true
}
