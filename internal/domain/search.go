package domain

// Hit is a single ranked document.
type Hit struct {
	ID     string
	Score  float64
	Fields Document
}

// SearchResult is ordered by descending Score.
type SearchResult struct {
	Hits []Hit
}

// Len returns the number of hits.
func (r SearchResult) Len() int { return len(r.Hits) }
