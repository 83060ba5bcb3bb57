// Package embedding turns texts, chunks and queries into vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/metrics"
)

// Defaults.
const (
	DefaultBatchSize   = 128
	DefaultMaxAttempts = 5
	DefaultMinBackoff  = 2 * time.Second
	DefaultMaxBackoff  = 60 * time.Second
)

// Config tunes batching, pacing and retries.
type Config struct {
	Provider   string
	Model      string
	Dimensions int // 0 disables the check
	BatchSize  int

	// RequestsPerSecond paces provider calls; 0 means unlimited.
	RequestsPerSecond float64
	Burst             int

	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = DefaultMinBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = max(DefaultMaxBackoff, c.MinBackoff)
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
}

// Provider embeds through one of two chains: document mode for chunk
// content and query mode for questions.
type Provider struct {
	chains  map[domain.Mode]domain.Embedder
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewProvider creates a provider. query may be nil, then document serves both modes.
func NewProvider(document, query domain.Embedder, cfg Config, logger *zap.Logger) *Provider {
	cfg.applyDefaults()
	if query == nil {
		query = document
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Provider{
		chains: map[domain.Mode]domain.Embedder{
			domain.ModeDocument: document,
			domain.ModeQuery:    query,
		},
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Dimensions returns the configured vector size.
func (p *Provider) Dimensions() int { return p.cfg.Dimensions }

// EmbedTexts embeds texts in batches of at most BatchSize; output keeps input order.
func (p *Provider) EmbedTexts(ctx context.Context, texts []string, mode domain.Mode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inner, ok := p.chains[mode]
	if !ok {
		return nil, fmt.Errorf("unknown embedding mode %q", mode)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(texts))

		res, err := p.embedWithRetry(ctx, inner, texts[start:end], mode)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts: %w",
				len(res.Embeddings), end-start, domain.ErrEmbeddingProviderError)
		}
		if err := domain.CheckDimensions(res.Embeddings, p.cfg.Dimensions); err != nil {
			return nil, err //nolint:wrapcheck // carries the sentinel
		}

		domain.UsageFromContext(ctx).Add(res.TotalTokens)
		out = append(out, res.Embeddings...)
	}

	p.logger.Debug("Embedded texts",
		zap.String("provider", p.cfg.Provider),
		zap.String("model", p.cfg.Model),
		zap.String("mode", string(mode)),
		zap.Int("count", len(texts)),
	)
	return out, nil
}

// EmbedChunks embeds chunk contents in document mode.
func (p *Provider) EmbedChunks(ctx context.Context, chunks []chunk.Chunk) ([]chunk.Embedded, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	vectors, err := p.EmbedTexts(ctx, texts, domain.ModeDocument)
	if err != nil {
		return nil, err
	}

	out := make([]chunk.Embedded, len(chunks))
	for i := range chunks {
		out[i] = chunk.Embedded{Chunk: chunks[i], Vector: vectors[i]}
	}
	return out, nil
}

// EmbedQuery embeds a single question in query mode.
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedTexts(ctx, []string{text}, domain.ModeQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// HealthCheck embeds a short text through the document chain.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if hc, ok := p.chains[domain.ModeDocument].(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // pass-through
	}
	return nil
}

// embedWithRetry paces the call and retries rate-limit errors with
// exponential backoff. Any other error is returned at once.
func (p *Provider) embedWithRetry(
	ctx context.Context, inner domain.Embedder, texts []string, mode domain.Mode,
) (domain.BatchEmbeddingResult, error) {
	delay := p.cfg.MinBackoff

	for attempt := 1; ; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("rate limiter: %w", err)
		}

		res, err := domain.EmbedBatch(ctx, inner, texts)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, domain.ErrRateLimited) || attempt >= p.cfg.MaxAttempts {
			return domain.BatchEmbeddingResult{}, err //nolint:wrapcheck // caller wraps
		}

		metrics.EmbeddingRetriesTotal.WithLabelValues(string(mode)).Inc()
		p.logger.Warn("Embedding rate limited, backing off",
			zap.String("provider", p.cfg.Provider),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Int("batch_size", len(texts)),
		)

		if err := p.sleep(ctx, delay); err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("backoff: %w", err)
		}
		delay = min(delay*2, p.cfg.MaxBackoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
