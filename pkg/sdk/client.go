package knnsearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/db"
	dbRedis "github.com/kailas-cloud/knnsearch/internal/db/redis"
	"github.com/kailas-cloud/knnsearch/internal/domain"
	"github.com/kailas-cloud/knnsearch/internal/retry"
	"github.com/kailas-cloud/knnsearch/internal/schema"
	healthuc "github.com/kailas-cloud/knnsearch/internal/usecase/health"
	"github.com/kailas-cloud/knnsearch/internal/usecase/indexing"
	"github.com/kailas-cloud/knnsearch/internal/usecase/provision"
	"github.com/kailas-cloud/knnsearch/internal/usecase/query"
)

const (
	defaultDimensions = 3072
	defaultTimeout    = 5 * time.Second
	defaultAttempts   = 3
	readinessTimeout  = 10 * time.Second
)

// Client indexes product catalogs and answers semantic queries.
type Client struct {
	store    backend
	indexer  indexUseCase
	searcher queryUseCase
	health   healthUseCase
	obs      *observer
}

// backend is the store surface the client wires into its services.
type backend interface {
	Ping(ctx context.Context) error
	Close()
	db.IndexManager
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

type indexUseCase interface {
	RunReader(ctx context.Context, r io.Reader, indexName string) (domain.IndexingReport, error)
}

type queryUseCase interface {
	Search(ctx context.Context, indexName, text string, k, returnCount int) (domain.SearchResult, error)
}

// New connects to the store and builds a client.
// WithRedis and WithEmbedder are required.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := newClientConfig(opts)
	if len(cfg.addrs) == 0 {
		return nil, errors.New("knnsearch: WithRedis is required")
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:              cfg.addrs,
		Username:           cfg.username,
		Password:           cfg.password,
		TLS:                cfg.tls,
		InsecureSkipVerify: cfg.insecure,
		Timeout:            cfg.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("knnsearch: %w", err)
	}
	if err := store.WaitForReady(ctx, readinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("knnsearch: %w", err)
	}

	c, err := newClient(store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func newClientConfig(opts []Option) *clientConfig {
	cfg := &clientConfig{
		dimensions: defaultDimensions,
		timeout:    defaultTimeout,
		attempts:   defaultAttempts,
		onMissing:  string(indexing.MissingSkip),
		idField:    "id",
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	return cfg
}

// newClient wires services over an already connected store.
func newClient(store backend, cfg *clientConfig) (*Client, error) {
	if cfg.embedder == nil {
		return nil, errors.New("knnsearch: WithEmbedder is required")
	}

	def, err := loadSchema(cfg)
	if err != nil {
		return nil, fmt.Errorf("knnsearch: %w", err)
	}
	policy, err := indexing.ParseMissingPolicy(cfg.onMissing)
	if err != nil {
		return nil, fmt.Errorf("knnsearch: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	embed := &embedderAdapter{inner: cfg.embedder}
	retryPolicy := retry.New(cfg.attempts)

	prov := provision.New(store, cfg.dimensions, retryPolicy, cfg.logger)
	indexer := indexing.New(prov, store, embed, indexing.Options{
		Schema:      def,
		Dim:         cfg.dimensions,
		IDField:     cfg.idField,
		OnMissing:   policy,
		MaxFailures: cfg.maxFailed,
		Retry:       retryPolicy,
	}, cfg.logger)

	qopts := query.Options{Dim: cfg.dimensions, Retry: retryPolicy}
	if f, ok := def.VectorField(domain.VectorField); ok {
		qopts.Metric = f.VectorDistance
	}

	return &Client{
		store:    store,
		indexer:  indexer,
		searcher: query.New(store, embed, qopts, cfg.logger),
		health:   healthuc.New(store, nil, healthuc.WithTimeout(cfg.timeout)),
		obs:      obs,
	}, nil
}

func loadSchema(cfg *clientConfig) (*db.IndexDefinition, error) {
	if cfg.schemaPath == "" {
		return schema.Default(cfg.dimensions), nil
	}
	def, err := schema.Load(cfg.schemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.CheckVector(def, domain.VectorField, cfg.dimensions); err != nil {
		return nil, fmt.Errorf("schema %s: %w", cfg.schemaPath, err)
	}
	return def, nil
}

// Close releases the store connection.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	err := c.store.Ping(ctx)
	c.obs.observe("ping", start, err)
	if err != nil {
		return fmt.Errorf("knnsearch: %w", err)
	}
	return nil
}

// Index provisions the index if needed and writes one document per JSON line of r.
// Per-document failures are collected in the report; the error is reserved for
// fatal conditions, returned together with the partial report.
func (c *Client) Index(ctx context.Context, indexName string, r io.Reader) (Report, error) {
	start := time.Now()
	rep, err := c.indexer.RunReader(ctx, r, indexName)
	c.obs.observe("index", start, err)
	return reportFromDomain(rep), err
}

// IndexFile is Index over a JSONL file.
func (c *Client) IndexFile(ctx context.Context, indexName, path string) (Report, error) {
	f, err := os.Open(path) //nolint:gosec // caller-chosen catalog path
	if err != nil {
		return Report{Index: indexName}, fmt.Errorf("knnsearch: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return c.Index(ctx, indexName, f)
}

// Search returns up to size hits out of the k nearest neighbors of text, best first.
func (c *Client) Search(ctx context.Context, indexName, text string, k, size int) ([]Hit, error) {
	start := time.Now()
	res, err := c.searcher.Search(ctx, indexName, text, k, size)
	c.obs.observe("search", start, err)
	if err != nil {
		return nil, err //nolint:wrapcheck // sentinels checked by callers with errors.Is
	}
	return hitsFromDomain(res), nil
}
