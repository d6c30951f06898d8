package knnsearch

import (
	"github.com/kailas-cloud/knnsearch/internal/db"
	"github.com/kailas-cloud/knnsearch/internal/domain"
	"github.com/kailas-cloud/knnsearch/internal/usecase/indexing"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrProvisioning         = domain.ErrProvisioning
	ErrMissingField         = domain.ErrMissingField
	ErrInvalidSchema        = domain.ErrInvalidSchema
	ErrInvalidQuery         = domain.ErrInvalidQuery
	ErrInvalidDocument      = domain.ErrInvalidDocument
	ErrVectorDimMismatch    = domain.ErrVectorDimMismatch
	ErrEmbeddingUnavailable = domain.ErrEmbeddingUnavailable
	ErrEmbeddingProvider    = domain.ErrEmbeddingProvider
	ErrIndexWrite           = domain.ErrIndexWrite
	ErrSearchBackend        = domain.ErrSearchBackend
	ErrIndexNotFound        = db.ErrIndexNotFound
	ErrTooManyFailures      = indexing.ErrTooManyFailures
)

// MissingFieldError names the field a document lacks.
type MissingFieldError = domain.MissingFieldError
