package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName   string
	VectorField string
	Vector      []float32
	// K bounds candidate retrieval inside the index; Limit bounds returned hits.
	K        int
	Limit    int
	Distance DistanceMetric
	// ReturnFields empty means the whole document ("$" for JSON indexes).
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
// Score is a similarity: higher is closer.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// ScoreFromDistance converts a backend distance into a higher-is-better score.
func ScoreFromDistance(metric DistanceMetric, d float64) float64 {
	switch metric {
	case DistanceL2:
		return 1 / (1 + d)
	case DistanceIP:
		return 1 - d
	default:
		return max(0, 1.0-d) // cosine distance → similarity, clamped to [0,1]
	}
}
