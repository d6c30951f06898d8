package provision

import (
	"context"

	"github.com/kailas-cloud/knnsearch/internal/db"
)

// IndexManager is the subset of the store the provisioner needs.
type IndexManager interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
}
