package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Indexing and query metrics.
var (
	IndexerDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexer_documents_total",
			Help:      "Documents processed by the indexer",
		},
		[]string{"index", "status"}, // indexed, without_vector, skipped, failed
	)

	IndexerWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "indexer_write_duration_seconds",
			Help:      "Document write duration in seconds, retries included",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"index"},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "KNN queries executed",
		},
		[]string{"index", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end query duration in seconds, embedding included",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"index"},
	)
)

// Document statuses reported by IndexerDocumentsTotal.
const (
	StatusIndexed       = "indexed"
	StatusWithoutVector = "without_vector"
	StatusSkipped       = "skipped"
	StatusFailed        = "failed"
)

var pipelineOnce sync.Once

// RegisterPipelineMetrics registers indexer and search metrics with the default registerer.
func RegisterPipelineMetrics() {
	pipelineOnce.Do(func() {
		prometheus.MustRegister(
			IndexerDocumentsTotal,
			IndexerWriteDuration,
			SearchRequestsTotal,
			SearchDuration,
		)
	})
}
