package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/config"
	"github.com/kailas-cloud/knnsearch/internal/db"
	"github.com/kailas-cloud/knnsearch/internal/domain"
	"github.com/kailas-cloud/knnsearch/internal/schema"
	"github.com/kailas-cloud/knnsearch/internal/usecase/indexing"
	"github.com/kailas-cloud/knnsearch/internal/usecase/provision"
	"github.com/kailas-cloud/knnsearch/internal/usecase/query"
)

// LoadSchema reads the index definition and checks it against the configured dimensionality.
func LoadSchema(cfg config.Config) (*db.IndexDefinition, error) {
	def, err := schema.Load(cfg.Index.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.CheckVector(def, domain.VectorField, cfg.Embedding.Dimensions); err != nil {
		return nil, fmt.Errorf("schema %s: %w", cfg.Index.SchemaPath, err)
	}
	return def, nil
}

// IndexStore is the store surface the indexer needs.
type IndexStore interface {
	provision.IndexManager
	indexing.DocumentWriter
}

// NewIndexer builds the document indexer over store.
func NewIndexer(
	cfg config.Config, def *db.IndexDefinition, store IndexStore, embed domain.Embedder, logger *zap.Logger,
) (*indexing.Service, error) {
	policy, err := indexing.ParseMissingPolicy(cfg.Indexing.OnMissing)
	if err != nil {
		return nil, fmt.Errorf("indexing.on_missing: %w", err)
	}
	retryPolicy := RetryPolicy(cfg.Retry)
	prov := provision.New(store, cfg.Embedding.Dimensions, retryPolicy, logger)
	return indexing.New(prov, store, embed, indexing.Options{
		Schema:      def,
		Dim:         cfg.Embedding.Dimensions,
		IDField:     cfg.Indexing.IDField,
		OnMissing:   policy,
		MaxFailures: cfg.Indexing.MaxFailures,
		Retry:       retryPolicy,
	}, logger), nil
}

// NewQueryEngine builds the query service; scores follow the schema's vector metric.
func NewQueryEngine(
	cfg config.Config, def *db.IndexDefinition, searcher query.Searcher, embed domain.Embedder, logger *zap.Logger,
) *query.Service {
	opts := query.Options{Dim: cfg.Embedding.Dimensions, Retry: RetryPolicy(cfg.Retry)}
	if f, ok := def.VectorField(domain.VectorField); ok {
		opts.Metric = f.VectorDistance
	}
	return query.New(searcher, embed, opts, logger)
}
