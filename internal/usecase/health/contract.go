package health

import "context"

// DBPinger checks index store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexChecker reports whether a search index is provisioned.
type IndexChecker interface {
	IndexExists(ctx context.Context, name string) (bool, error)
}
