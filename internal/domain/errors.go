package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTenant signals a tenant id that cannot name a collection or graph.
	ErrInvalidTenant = errors.New("invalid tenant")
	// ErrInvalidDocument signals a raw document that failed validation.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrEmptyDocument signals a document with no text left after parsing.
	ErrEmptyDocument = errors.New("empty document")
	// ErrInvalidFilter signals a filter on an unknown or unsupported field.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidQuery signals a malformed query request.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidTransition signals an illegal ingestion status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrLLMError signals a failed completion call.
	ErrLLMError = errors.New("llm error")
	// ErrRerankError signals a failed rerank call.
	ErrRerankError = errors.New("rerank error")
	// ErrGraphError signals a failed graph query.
	ErrGraphError = errors.New("graph error")
	// ErrNotImplemented signals an unimplemented feature.
	ErrNotImplemented = errors.New("not implemented")
)
