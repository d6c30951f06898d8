package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProvisioning signals that the target index could not be verified or created.
	ErrProvisioning = errors.New("index provisioning failed")
	// ErrMissingField signals a document without a field required for embedding.
	ErrMissingField = errors.New("missing required field")
	// ErrEmbeddingUnavailable signals that the provider returned no vector for a query.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrIndexWrite signals a failed document write.
	ErrIndexWrite = errors.New("index write failed")
	// ErrSearchBackend signals a failed vector search.
	ErrSearchBackend = errors.New("search backend error")
	// ErrVectorDimMismatch signals a vector whose length differs from the index dimensionality.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidQuery signals malformed search parameters.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidSchema signals an index definition that cannot serve the pipeline.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrInvalidDocument signals an input line that is not a JSON object.
	ErrInvalidDocument = errors.New("invalid document")
)

// MissingFieldError names the field a document lacks.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingField.Error(), e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// DimMismatchError carries the expected and actual vector lengths.
type DimMismatchError struct {
	Want int
	Got  int
}

func (e *DimMismatchError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", ErrVectorDimMismatch.Error(), e.Want, e.Got)
}

func (e *DimMismatchError) Unwrap() error { return ErrVectorDimMismatch }

// CheckDim returns a *DimMismatchError when len(vec) != dim.
func CheckDim(vec []float32, dim int) error {
	if len(vec) != dim {
		return &DimMismatchError{Want: dim, Got: len(vec)}
	}
	return nil
}
