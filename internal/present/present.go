// Package present renders search results as display lines.
package present

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/knnsearch/internal/domain"
)

// Header returns the summary line for n hits.
func Header(n int) string {
	return fmt.Sprintf("Found %d results:", n)
}

// Line renders a single hit. Missing name or description fall back to the hit ID.
func Line(h domain.Hit) string {
	name := h.Fields.StringField(domain.NameField)
	if name == "" {
		name = h.ID
	}
	desc := h.Fields.StringField(domain.DescriptionField)
	if desc == "" {
		desc = h.ID
	}
	return fmt.Sprintf("Product Name: %s, Description: %s, Score: %.4f", name, desc, h.Score)
}

// Format returns the header followed by one line per hit, in result order.
func Format(res domain.SearchResult) []string {
	lines := make([]string, 0, res.Len()+1)
	lines = append(lines, Header(res.Len()))
	for _, h := range res.Hits {
		lines = append(lines, Line(h))
	}
	return lines
}

// Report renders an indexing summary followed by one line per recorded error.
func Report(r domain.IndexingReport) []string {
	lines := make([]string, 0, len(r.Errors)+1)
	lines = append(lines, fmt.Sprintf(
		"Indexed %s: attempted=%d succeeded=%d failed=%d skipped=%d without_vector=%d duration=%s",
		r.Index, r.Attempted, r.Succeeded, r.Failed, r.Skipped, r.WithoutVector, r.Duration.Round(time.Millisecond),
	))
	for _, e := range r.Errors {
		if e.ID != "" {
			lines = append(lines, fmt.Sprintf("  line %d (id %s): %v", e.Line, e.ID, e.Err))
			continue
		}
		lines = append(lines, fmt.Sprintf("  line %d: %v", e.Line, e.Err))
	}
	return lines
}
