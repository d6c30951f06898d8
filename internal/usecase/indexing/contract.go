package indexing

import (
	"context"

	"github.com/kailas-cloud/knnsearch/internal/db"
)

// DocumentWriter persists one JSON document under a key.
type DocumentWriter interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
}

// Provisioner makes sure the target index exists.
type Provisioner interface {
	Ensure(ctx context.Context, indexName string, def *db.IndexDefinition) error
}
