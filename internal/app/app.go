// Package app is the composition root shared by the server, the CLI and the SDK.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/config"
	"github.com/kailas-cloud/evergreen/internal/db/badger"
	"github.com/kailas-cloud/evergreen/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/evergreen/internal/db/redis"
	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/extraction"
	"github.com/kailas-cloud/evergreen/internal/ingest/chunker"
	"github.com/kailas-cloud/evergreen/internal/ingest/parser"
	"github.com/kailas-cloud/evergreen/internal/metrics"
	graphrepo "github.com/kailas-cloud/evergreen/internal/repository/graph"
	statusrepo "github.com/kailas-cloud/evergreen/internal/repository/status"
	vectorrepo "github.com/kailas-cloud/evergreen/internal/repository/vector"
	"github.com/kailas-cloud/evergreen/internal/transport/cohere"
	"github.com/kailas-cloud/evergreen/internal/transport/llm"
	"github.com/kailas-cloud/evergreen/internal/transport/ollama"
	openaiEmb "github.com/kailas-cloud/evergreen/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/evergreen/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/evergreen/internal/usecase/health"
	ingestionuc "github.com/kailas-cloud/evergreen/internal/usecase/ingestion"
	retrievaluc "github.com/kailas-cloud/evergreen/internal/usecase/retrieval"
)

const tiktokenEncoding = "cl100k_base"

// vectorIndex is what both pipelines need from a chunk store.
type vectorIndex interface {
	ingestionuc.VectorIndex
	retrievaluc.VectorIndex
}

// App holds the wired services.
type App struct {
	Ingestion *ingestionuc.Orchestrator
	Retrieval *retrievaluc.Engine
	Statuses  *statusrepo.Repo
	Health    *healthuc.Service
	Embedding *embeddinguc.Provider

	closers []func()
	logger  *zap.Logger
}

// Build connects to every backend named in cfg and wires the services.
// On error everything opened so far is closed again.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, readiness); err != nil {
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))

	vectors, vectorPinger, err := a.buildVectorIndex(ctx, cfg, store, readiness)
	if err != nil {
		return nil, err
	}
	graph := graphrepo.New(store)
	a.Statuses = statusrepo.New(store)

	cache, cachePinger, err := a.buildCache(cfg, store)
	if err != nil {
		return nil, err
	}
	a.Embedding, err = a.buildEmbedding(ctx, cfg, cache)
	if err != nil {
		return nil, err
	}

	model, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("create llm: %w", err)
	}

	a.Ingestion = ingestionuc.New(
		parser.New(logger),
		buildChunker(cfg.Chunking, logger),
		buildExtractor(cfg.Extraction, model, logger),
		a.Embedding,
		vectors,
		graph,
		a.Statuses,
		logger,
	).WithMaxConcurrent(cfg.Ingestion.MaxConcurrent)

	a.Retrieval = retrievaluc.New(a.Embedding, vectors, graph, retrievaluc.Config{
		OversampleFactor:    cfg.Retrieval.OversampleFactor,
		ScoreThreshold:      cfg.Retrieval.ScoreThreshold,
		GraphDocuments:      cfg.Retrieval.GraphDocuments,
		EntitiesPerDocument: cfg.Retrieval.EntitiesPerDocument,
		MaxTokens:           cfg.LLM.MaxTokens,
		Temperature:         cfg.LLM.Temperature,
		EntityDepth:         cfg.Retrieval.DefaultDepth,
		Dimensions:          cfg.Embedding.Dimensions,
	}, logger)
	if model != nil {
		a.Retrieval.WithGenerator(model)
	}
	if cfg.Rerank.Provider == "cohere" {
		rr, err := cohere.New(cohere.Config{
			APIKey:  cfg.Rerank.APIKey,
			BaseURL: cfg.Rerank.BaseURL,
			Model:   cfg.Rerank.Model,
			Timeout: time.Duration(cfg.Rerank.TimeoutSec) * time.Second,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create reranker: %w", err)
		}
		a.Retrieval.WithReranker(rr)
	}

	a.Health = healthuc.New(vectorPinger).
		WithGraph(store).
		WithEmbedding(a.Embedding)
	if cachePinger != nil {
		a.Health.WithCache(cachePinger)
	}

	logger.Info("Services wired",
		zap.String("vector_store", cfg.VectorStore.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.String("cache", cfg.Embedding.Cache.Backend),
		zap.String("llm", cfg.LLM.Provider),
		zap.String("rerank", cfg.Rerank.Provider),
		zap.String("extraction", cfg.Extraction.Mode),
	)
	return a, nil
}

// Close releases backends in reverse opening order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) buildVectorIndex(
	ctx context.Context, cfg config.Config, store *dbRedis.Store, readiness time.Duration,
) (vectorIndex, healthuc.Pinger, error) {
	if cfg.VectorStore.Driver != "pgvector" {
		return vectorrepo.New(store, cfg.Embedding.Dimensions, vectorrepo.HNSWConfig{
			M:           cfg.VectorStore.HNSWM,
			EFConstruct: cfg.VectorStore.HNSWEFConstruct,
		}), store, nil
	}

	pg, err := postgres.New(ctx, postgres.Config{
		DSN:                cfg.VectorStore.PostgresDSN,
		Dimensions:         cfg.Embedding.Dimensions,
		HNSWM:              cfg.VectorStore.HNSWM,
		HNSWEFConstruction: cfg.VectorStore.HNSWEFConstruct,
	}, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create pgvector store: %w", err)
	}
	a.closers = append(a.closers, pg.Close)

	if err := pg.WaitForReady(ctx, readiness); err != nil {
		return nil, nil, fmt.Errorf("pgvector not ready: %w", err)
	}
	return pg, pg, nil
}

// cacheBackend is an embedding cache store that can report its health.
type cacheBackend interface {
	embeddinguc.CacheStore
	healthuc.Pinger
}

func (a *App) buildCache(cfg config.Config, store *dbRedis.Store) (embeddinguc.CacheStore, healthuc.Pinger, error) {
	var backend cacheBackend
	switch cfg.Embedding.Cache.Backend {
	case "none":
		return nil, nil, nil
	case "badger":
		kv, err := badger.Open(cfg.Embedding.Cache.Path, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open embedding cache: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := kv.Close(); err != nil {
				a.logger.Warn("Closing embedding cache failed", zap.Error(err))
			}
		})
		backend = kv
	default:
		backend = store
	}
	return backend, backend, nil
}

func (a *App) buildEmbedding(
	ctx context.Context, cfg config.Config, cache embeddinguc.CacheStore,
) (*embeddinguc.Provider, error) {
	e := cfg.Embedding

	var transport domain.Embedder
	switch e.Provider {
	case "ollama":
		emb, err := ollama.NewEmbedder(ctx, &ollama.Config{
			BaseURL:    e.BaseURL,
			Model:      e.Model,
			Dimensions: e.Dimensions,
			Logger:     a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}
		transport = emb
	default:
		transport = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     e.APIKey,
			BaseURL:    e.BaseURL,
			Model:      e.Model,
			Dimensions: e.Dimensions,
			Provider:   e.Provider,
			Logger:     a.logger,
		})
	}

	chain := func(instruction string) domain.Embedder {
		return embeddinguc.BuildChain(transport, embeddinguc.ChainConfig{
			Instruction:    instruction,
			Cache:          cache,
			CacheNamespace: e.Provider + ":" + e.Model,
			CacheTTL:       time.Duration(e.Cache.TTLHours) * time.Hour,
			CacheTotal:     metrics.EmbeddingCacheTotal,
		}, a.logger)
	}

	return embeddinguc.NewProvider(chain(e.DocumentInstruction), chain(e.QueryInstruction), embeddinguc.Config{
		Provider:          e.Provider,
		Model:             e.Model,
		Dimensions:        e.Dimensions,
		BatchSize:         e.BatchSize,
		RequestsPerSecond: e.RequestsPerSecond,
		Burst:             e.Burst,
		MaxAttempts:       e.MaxAttempts,
	}, a.logger), nil
}

func buildChunker(cfg config.ChunkingConfig, logger *zap.Logger) *chunker.Chunker {
	opts := make([]chunker.Option, 0, len(cfg.Profiles)+1)
	if cfg.Tokenizer == "tiktoken" {
		tok, err := chunker.NewTikToken(tiktokenEncoding)
		if err != nil {
			logger.Warn("Tiktoken unavailable, estimating tokens", zap.Error(err))
			opts = append(opts, chunker.WithTokenizer(chunker.Estimator{CharsPerToken: cfg.CharsPerToken}))
		} else {
			opts = append(opts, chunker.WithTokenizer(tok))
		}
	} else {
		opts = append(opts, chunker.WithTokenizer(chunker.Estimator{CharsPerToken: cfg.CharsPerToken}))
	}
	for key, p := range cfg.Profiles {
		opts = append(opts, chunker.WithProfile(key, chunker.Config{
			MaxTokens:     p.MaxTokens,
			OverlapTokens: p.OverlapTokens,
			MinChunkSize:  p.MinChunkSize,
		}))
	}
	return chunker.New(opts...)
}

func buildExtractor(cfg config.ExtractionConfig, model llms.Model, logger *zap.Logger) ingestionuc.Extractor {
	xcfg := extraction.Config{
		Types:     extraction.ParseTypes(cfg.Types, cfg.BusinessTypes),
		Threshold: cfg.Threshold,
	}
	if cfg.Mode == "llm" && model != nil {
		return extraction.NewLLMExtractor(model, xcfg, logger)
	}
	return extraction.NewPipeline(extraction.PatternRecognizer{}, xcfg)
}
