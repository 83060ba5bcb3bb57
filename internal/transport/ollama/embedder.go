// Package ollama is the local embedding provider backed by an Ollama server.
package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/metrics"
)

const (
	defaultServerURL = "http://localhost:11434"
	defaultModel     = "nomic-embed-text"
	provider         = "ollama"
)

// Config holds the local provider settings.
type Config struct {
	BaseURL    string
	Model      string
	Dimensions int
	Logger     *zap.Logger
}

// Embedder wraps a langchaingo embeddings.Embedder talking to Ollama.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *zap.Logger
}

// NewEmbedder connects to Ollama and embeds one test text to check the model.
// A test vector of the wrong size fails with domain.ErrVectorDimMismatch.
func NewEmbedder(ctx context.Context, cfg *Config) (*Embedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultServerURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	client, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("init ollama client: %w", err)
	}
	inner, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("init ollama embedder: %w", err)
	}

	e := newEmbedder(inner, cfg.Model, cfg.Logger)
	if err := e.checkModel(ctx, cfg.Dimensions); err != nil {
		return nil, err
	}
	return e, nil
}

func newEmbedder(inner embeddings.Embedder, model string, logger *zap.Logger) *Embedder {
	return &Embedder{embedder: inner, model: model, logger: logger}
}

func (e *Embedder) checkModel(ctx context.Context, dims int) error {
	res, err := e.Embed(ctx, "ping")
	if err != nil {
		return fmt.Errorf("check ollama model %s: %w", e.model, err)
	}
	if err := domain.CheckDimensions([][]float32{res.Embedding}, dims); err != nil {
		return fmt.Errorf("check ollama model %s: %w", e.model, err)
	}
	e.logger.Info("ollama embedder ready",
		zap.String("model", e.model),
		zap.Int("dimensions", len(res.Embedding)),
	)
	return nil
}

// Embed implements domain.Embedder. Ollama reports no token usage.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: vecs[0]}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	vecs, err := e.embed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return domain.BatchEmbeddingResult{Embeddings: vecs}, nil
}

// HealthCheck embeds a short test text.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.embed(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("ollama health: %w", err)
	}
	return nil
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	call := metrics.EmbeddingCall{Provider: provider, Model: e.model}

	start := time.Now()
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		call.Failed(metrics.FailureAPI)
		return nil, fmt.Errorf("ollama embed: %w: %w", err, domain.ErrEmbeddingProviderError)
	}
	if len(vecs) != len(texts) {
		call.Failed(metrics.FailureEmpty)
		return nil, fmt.Errorf("expected %d embeddings, got %d: %w",
			len(texts), len(vecs), domain.ErrEmbeddingProviderError)
	}

	call.Succeeded(time.Since(start), 0, 0)
	return vecs, nil
}
