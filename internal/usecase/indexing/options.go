package indexing

import (
	"fmt"

	"github.com/kailas-cloud/knnsearch/internal/db"
	"github.com/kailas-cloud/knnsearch/internal/retry"
)

// MissingPolicy decides what happens to a document without a description.
type MissingPolicy string

const (
	// MissingSkip counts the document as skipped and continues.
	MissingSkip MissingPolicy = "skip"
	// MissingAbort stops the run at the first such document.
	MissingAbort MissingPolicy = "abort"
)

// ParseMissingPolicy validates a policy name; empty means skip.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch MissingPolicy(s) {
	case "", MissingSkip:
		return MissingSkip, nil
	case MissingAbort:
		return MissingAbort, nil
	default:
		return "", fmt.Errorf("unknown missing-field policy %q (want abort or skip)", s)
	}
}

// Options configures a Service.
type Options struct {
	Schema *db.IndexDefinition
	Dim    int
	// IDField names the document field used as key; absent values get a UUID.
	IDField   string
	OnMissing MissingPolicy
	// MaxFailures aborts the run once exceeded; zero means unlimited.
	MaxFailures int
	Retry       retry.Policy
}
