package knnsearch

import (
	"time"

	"github.com/kailas-cloud/knnsearch/internal/domain"
)

// Hit is one search result, best first.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string]any
}

// Name returns the "name" field, or "" when absent.
func (h Hit) Name() string { return domain.Document(h.Fields).StringField(domain.NameField) }

// Description returns the "description" field, or "" when absent.
func (h Hit) Description() string {
	return domain.Document(h.Fields).StringField(domain.DescriptionField)
}

// DocumentError is a failure for one input line.
type DocumentError struct {
	Line int
	ID   string
	Err  error
}

// Report summarizes one indexing run.
type Report struct {
	Index         string
	Attempted     int
	Succeeded     int
	Failed        int
	Skipped       int
	WithoutVector int
	Errors        []DocumentError
	Duration      time.Duration
}

func reportFromDomain(r domain.IndexingReport) Report {
	out := Report{
		Index:         r.Index,
		Attempted:     r.Attempted,
		Succeeded:     r.Succeeded,
		Failed:        r.Failed,
		Skipped:       r.Skipped,
		WithoutVector: r.WithoutVector,
		Duration:      r.Duration,
	}
	if len(r.Errors) > 0 {
		out.Errors = make([]DocumentError, len(r.Errors))
		for i, e := range r.Errors {
			out.Errors[i] = DocumentError{Line: e.Line, ID: e.ID, Err: e.Err}
		}
	}
	return out
}

func hitsFromDomain(r domain.SearchResult) []Hit {
	hits := make([]Hit, len(r.Hits))
	for i, h := range r.Hits {
		hits[i] = Hit{ID: h.ID, Score: h.Score, Fields: h.Fields}
	}
	return hits
}
