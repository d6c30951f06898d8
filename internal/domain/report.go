package domain

import "time"

// DocumentError records a failure for one input line.
type DocumentError struct {
	Line int
	ID   string
	Err  error
}

// IndexingReport summarizes one indexing run.
type IndexingReport struct {
	Index         string
	Attempted     int
	Succeeded     int
	Failed        int
	Skipped       int
	WithoutVector int
	Errors        []DocumentError
	Duration      time.Duration
}

// AddError records a failed document.
func (r *IndexingReport) AddError(line int, id string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, DocumentError{Line: line, ID: id, Err: err})
}

// AddSkipped records a skipped document along with its reason.
func (r *IndexingReport) AddSkipped(line int, err error) {
	r.Skipped++
	r.Errors = append(r.Errors, DocumentError{Line: line, Err: err})
}
