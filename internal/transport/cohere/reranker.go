// Package cohere reranks retrieved chunks with the Cohere v2 rerank API.
package cohere

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/core"
	"github.com/cohere-ai/cohere-go/v2/option"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
)

// Defaults.
const (
	DefaultBaseURL = "https://api.cohere.com"
	DefaultModel   = "rerank-v3.5"
	DefaultTimeout = 10 * time.Second
)

// Config holds the reranker settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Reranker scores documents against a query. A failed call is not retried:
// the caller falls back to vector order instead.
type Reranker struct {
	client *cohereclient.Client
	model  string
	logger *zap.Logger
}

// New creates a Cohere reranker.
func New(cfg Config) (*Reranker, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("cohere: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	client := cohereclient.NewClient(
		option.WithToken(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxAttempts(1),
	)
	return &Reranker{client: client, model: cfg.Model, logger: cfg.Logger}, nil
}

// Rerank returns up to topN documents ordered by relevance, highest first.
func (r *Reranker) Rerank(ctx context.Context, q string, documents []string, topN int) ([]query.Ranked, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	req := &cohere.V2RerankRequest{
		Model:     r.model,
		Query:     q,
		Documents: documents,
	}
	if topN > 0 {
		req.TopN = &topN
	}

	start := time.Now()
	resp, err := r.client.V2.Rerank(ctx, req)
	if err != nil {
		return nil, classify(err)
	}

	out := make([]query.Ranked, 0, len(resp.Results))
	for _, res := range resp.Results {
		if res == nil {
			continue
		}
		if res.Index < 0 || res.Index >= len(documents) {
			return nil, fmt.Errorf("rerank index %d out of range: %w", res.Index, domain.ErrRerankError)
		}
		out = append(out, query.Ranked{Index: res.Index, Score: res.RelevanceScore})
	}

	r.logger.Debug("reranked",
		zap.String("model", r.model),
		zap.Int("documents", len(documents)),
		zap.Int("results", len(out)),
		zap.Duration("took", time.Since(start)),
	)
	return out, nil
}

// classify tags SDK errors with ErrRerankError, and 429 also with ErrRateLimited.
func classify(err error) error {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("rerank API status %d: %w: %w", apiErr.StatusCode, domain.ErrRateLimited, domain.ErrRerankError)
		}
		return fmt.Errorf("rerank API status %d: %w: %w", apiErr.StatusCode, err, domain.ErrRerankError)
	}
	return fmt.Errorf("rerank: %w: %w", err, domain.ErrRerankError)
}
