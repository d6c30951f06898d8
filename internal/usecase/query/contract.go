package query

import (
	"context"

	"github.com/kailas-cloud/knnsearch/internal/db"
)

// Searcher runs KNN queries against the index store.
type Searcher interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}
