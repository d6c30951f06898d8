package provision

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/db"
	"github.com/kailas-cloud/knnsearch/internal/domain"
	"github.com/kailas-cloud/knnsearch/internal/retry"
	"github.com/kailas-cloud/knnsearch/internal/schema"
)

// Service makes sure the target index exists with the loaded schema.
// An existing index is left as is; there is no schema diff or migration.
type Service struct {
	store  IndexManager
	dim    int
	retry  retry.Policy
	logger *zap.Logger
}

// New creates a provisioner for vectors of the given dimensionality.
func New(store IndexManager, dim int, policy retry.Policy, logger *zap.Logger) *Service {
	return &Service{store: store, dim: dim, retry: policy, logger: logger}
}

// Ensure creates indexName from def unless it already exists.
// A concurrent creator winning the race counts as success.
// Every failure wraps domain.ErrProvisioning.
func (s *Service) Ensure(ctx context.Context, indexName string, def *db.IndexDefinition) error {
	if !db.IsValidIdentifier(indexName) {
		return fmt.Errorf("%w: invalid index name %q", domain.ErrProvisioning, indexName)
	}
	if def == nil {
		return fmt.Errorf("%w: no index definition", domain.ErrProvisioning)
	}
	if err := schema.CheckVector(def, domain.VectorField, s.dim); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProvisioning, err)
	}
	bound := def.Bind(indexName)

	var exists bool
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		exists, err = s.store.IndexExists(ctx, indexName)
		return err //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		return fmt.Errorf("%w: check index %s: %w", domain.ErrProvisioning, indexName, err)
	}
	if exists {
		s.logger.Info("Index already exists", zap.String("index", indexName))
		return nil
	}

	if err := s.store.CreateIndex(ctx, bound); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			s.logger.Info("Index created concurrently", zap.String("index", indexName))
			return nil
		}
		return fmt.Errorf("%w: create index %s: %w", domain.ErrProvisioning, indexName, err)
	}

	s.logger.Info("Index created",
		zap.String("index", indexName),
		zap.Stringer("definition", bound),
	)
	return nil
}
