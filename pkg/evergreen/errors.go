package evergreen

import "github.com/kailas-cloud/evergreen/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrInvalidTenant          = domain.ErrInvalidTenant
	ErrInvalidDocument        = domain.ErrInvalidDocument
	ErrEmptyDocument          = domain.ErrEmptyDocument
	ErrInvalidFilter          = domain.ErrInvalidFilter
	ErrInvalidQuery           = domain.ErrInvalidQuery
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrRateLimited            = domain.ErrRateLimited
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrLLMError               = domain.ErrLLMError
	ErrRerankError            = domain.ErrRerankError
)
