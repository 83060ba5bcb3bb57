package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/logger"
)

// ErrorCode is the machine-readable part of an error response.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeInvalidTenant    ErrorCode = "invalid_tenant"
	CodeNotFound         ErrorCode = "not_found"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeProviderError    ErrorCode = "provider_error"
	CodeNotImplemented   ErrorCode = "not_implemented"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// sentinelStatus lists every sentinel a client may see, in match order.
var sentinelStatus = []struct {
	err    error
	status int
	code   ErrorCode
}{
	{domain.ErrInvalidTenant, http.StatusBadRequest, CodeInvalidTenant},
	{domain.ErrInvalidDocument, http.StatusBadRequest, CodeValidationFailed},
	{domain.ErrEmptyDocument, http.StatusBadRequest, CodeValidationFailed},
	{domain.ErrInvalidFilter, http.StatusBadRequest, CodeValidationFailed},
	{domain.ErrInvalidQuery, http.StatusBadRequest, CodeValidationFailed},
	{domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeValidationFailed},
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited},
	{domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeProviderError},
	{domain.ErrLLMError, http.StatusBadGateway, CodeProviderError},
	{domain.ErrRerankError, http.StatusBadGateway, CodeProviderError},
	{domain.ErrNotImplemented, http.StatusNotImplemented, CodeNotImplemented},
}

func defaultErrorHandlers() []errorHandler {
	handlers := make([]errorHandler, 0, len(sentinelStatus)+1)
	for _, s := range sentinelStatus {
		handlers = append(handlers, sentinelHandler(s.err, s.status, s.code))
	}
	return append(handlers, retryAfterHandler)
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// Validation failures keep their full message since it only describes client input.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if status == http.StatusBadRequest {
			msg = err.Error()
		}
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
		}
		writeError(w, status, code, msg)
		return true
	}
}

const retryAfterSec = 2

// retryAfterHandler maps an exhausted context deadline to 503 so clients retry.
func retryAfterHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	writeError(w, http.StatusServiceUnavailable, CodeInternalError, "request timed out")
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("Request failed", zap.Error(err))
			return
		}
	}
	log.Error("Internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
