package evergreen

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/config"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	env        string
	configPath string
	overrides  []func(*config.Config)

	logger     *slog.Logger
	zapLogger  *zap.Logger
	metricsReg prometheus.Registerer
}

func (c *clientConfig) set(fn func(*config.Config)) {
	c.overrides = append(c.overrides, fn)
}

// WithEnv loads config/{env}.yaml, the file the server reads.
func WithEnv(env string) Option {
	return optionFunc(func(c *clientConfig) {
		c.env = env
	})
}

// WithConfigFile loads configuration from an explicit YAML path.
// Takes precedence over WithEnv.
func WithConfigFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.configPath = path
	})
}

// WithRedis sets the Redis address holding vectors, the graph and status records.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Database.Addrs = []string{addr}
			cfg.Database.Password = password
		})
	})
}

// WithPgvector stores chunk vectors in Postgres instead of Redis.
func WithPgvector(dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.VectorStore.Driver = "pgvector"
			cfg.VectorStore.PostgresDSN = dsn
		})
	})
}

// WithOpenAI embeds through the OpenAI API or any compatible endpoint.
func WithOpenAI(apiKey, model string, dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Embedding.Provider = "openai"
			cfg.Embedding.APIKey = apiKey
			cfg.Embedding.Model = model
			cfg.Embedding.Dimensions = dimensions
		})
	})
}

// WithOllama embeds through a local Ollama server.
func WithOllama(baseURL, model string, dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Embedding.Provider = "ollama"
			cfg.Embedding.BaseURL = baseURL
			cfg.Embedding.Model = model
			cfg.Embedding.Dimensions = dimensions
		})
	})
}

// WithBadgerCache keeps the embedding cache in a local BadgerDB directory.
func WithBadgerCache(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Embedding.Cache.Backend = "badger"
			cfg.Embedding.Cache.Path = path
		})
	})
}

// WithoutEmbeddingCache disables embedding caching.
func WithoutEmbeddingCache() Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Embedding.Cache.Backend = "none"
		})
	})
}

// WithLLM enables answer synthesis. Provider is openai, anthropic or ollama.
func WithLLM(provider, apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.LLM.Provider = provider
			cfg.LLM.APIKey = apiKey
			cfg.LLM.Model = model
		})
	})
}

// WithLLMExtraction extracts entities with the configured LLM instead of patterns.
func WithLLMExtraction() Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Extraction.Mode = "llm"
		})
	})
}

// WithCohereRerank reranks retrieved chunks through Cohere.
func WithCohereRerank(apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Rerank.Provider = "cohere"
			cfg.Rerank.APIKey = apiKey
		})
	})
}

// WithMaxConcurrent bounds parallel documents in a batch ingest.
// Default: 10.
func WithMaxConcurrent(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.set(func(cfg *config.Config) {
			cfg.Ingestion.MaxConcurrent = n
		})
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithServiceLogger sets the zap logger used inside the ingestion and
// retrieval services. Silent by default.
func WithServiceLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.zapLogger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
