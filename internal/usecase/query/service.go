package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/db"
	"github.com/kailas-cloud/knnsearch/internal/domain"
	"github.com/kailas-cloud/knnsearch/internal/metrics"
	"github.com/kailas-cloud/knnsearch/internal/retry"
)

// Options configures a Service.
type Options struct {
	Dim int
	// Metric converts backend distances to scores; it must match the index schema.
	Metric db.DistanceMetric
	Retry  retry.Policy
}

// Service turns free text into a KNN query over the description vectors.
type Service struct {
	searcher Searcher
	embed    domain.Embedder
	opts     Options
	logger   *zap.Logger
}

// New creates a query service.
func New(searcher Searcher, embed domain.Embedder, opts Options, logger *zap.Logger) *Service {
	if opts.Metric == "" {
		opts.Metric = db.DistanceCosine
	}
	return &Service{searcher: searcher, embed: embed, opts: opts, logger: logger}
}

// Search embeds text in query mode and returns up to returnCount hits out of
// k nearest neighbors, best first.
func (s *Service) Search(
	ctx context.Context, indexName, text string, k, returnCount int,
) (domain.SearchResult, error) {
	start := time.Now()
	res, err := s.search(ctx, indexName, text, k, returnCount)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SearchRequestsTotal.WithLabelValues(indexName, status).Inc()
	metrics.SearchDuration.WithLabelValues(indexName).Observe(time.Since(start).Seconds())

	if err != nil {
		return domain.SearchResult{}, err
	}
	s.logger.Debug("Search completed",
		zap.String("index", indexName),
		zap.Int("k", k),
		zap.Int("size", returnCount),
		zap.Int("hits", res.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (s *Service) search(
	ctx context.Context, indexName, text string, k, returnCount int,
) (domain.SearchResult, error) {
	if err := validate(indexName, text, k, returnCount); err != nil {
		return domain.SearchResult{}, err
	}

	emb, err := s.embed.Embed(ctx, []string{text}, domain.IntentQuery, s.opts.Dim)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("embed query: %w", err)
	}
	vec, ok := emb.First()
	if !ok {
		return domain.SearchResult{}, domain.ErrEmbeddingUnavailable
	}
	if err := domain.CheckDim(vec, s.opts.Dim); err != nil {
		return domain.SearchResult{}, err
	}

	q := &db.KNNQuery{
		IndexName:   indexName,
		VectorField: domain.VectorField,
		Vector:      vec,
		K:           k,
		Limit:       returnCount,
		Distance:    s.opts.Metric,
	}

	var raw *db.SearchResult
	err = s.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.searcher.SearchKNN(ctx, q)
		if errors.Is(err, db.ErrIndexNotFound) {
			return retry.Permanent(err)
		}
		return err //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("%w: %w", domain.ErrSearchBackend, err)
	}

	return toResult(indexName, raw, returnCount), nil
}

func validate(indexName, text string, k, returnCount int) error {
	switch {
	case indexName == "":
		return fmt.Errorf("%w: index name is required", domain.ErrInvalidQuery)
	case strings.TrimSpace(text) == "":
		return fmt.Errorf("%w: query text is empty", domain.ErrInvalidQuery)
	case k <= 0:
		return fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidQuery, k)
	case returnCount <= 0:
		return fmt.Errorf("%w: size must be positive, got %d", domain.ErrInvalidQuery, returnCount)
	case k < returnCount:
		return fmt.Errorf("%w: k (%d) must be >= size (%d)", domain.ErrInvalidQuery, k, returnCount)
	}
	return nil
}

// toResult maps store entries to hits. JSON documents come back under "$";
// the vector itself is dropped from the returned fields.
func toResult(indexName string, raw *db.SearchResult, limit int) domain.SearchResult {
	if raw == nil {
		return domain.SearchResult{}
	}
	prefix := db.KeyPrefix(indexName)
	hits := make([]domain.Hit, 0, len(raw.Entries))
	for _, e := range raw.Entries {
		fields := domain.Document{}
		if js, ok := e.Fields["$"]; ok {
			if doc, err := domain.ParseDocument([]byte(js)); err == nil {
				fields = doc
			}
		} else {
			for name, v := range e.Fields {
				fields[name] = v
			}
		}
		delete(fields, domain.VectorField)

		hits = append(hits, domain.Hit{
			ID:     strings.TrimPrefix(e.Key, prefix),
			Score:  e.Score,
			Fields: fields,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return domain.SearchResult{Hits: hits}
}
