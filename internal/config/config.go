package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the evergreen service configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Rerank      RerankConfig      `yaml:"rerank"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the Redis Stack / FalkorDB connection.
// The graph, status records and KV cache always live here.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// VectorStoreConfig selects the chunk index backend.
type VectorStoreConfig struct {
	Driver          string `yaml:"driver"` // redis, pgvector (default: redis)
	PostgresDSN     string `yaml:"postgres_dsn"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string      `yaml:"provider"` // openai, ollama
	APIKey              string      `yaml:"api_key"`
	BaseURL             string      `yaml:"base_url"`
	Model               string      `yaml:"model"`
	Dimensions          int         `yaml:"dimensions"`
	BatchSize           int         `yaml:"batch_size"`
	RequestsPerSecond   float64     `yaml:"requests_per_second"`
	Burst               int         `yaml:"burst"`
	MaxAttempts         int         `yaml:"max_attempts"`
	DocumentInstruction string      `yaml:"document_instruction"`
	QueryInstruction    string      `yaml:"query_instruction"`
	Cache               CacheConfig `yaml:"cache"`
}

// CacheConfig configures the embedding cache.
type CacheConfig struct {
	Backend  string `yaml:"backend"` // redis, badger, none (default: redis)
	Path     string `yaml:"path"`    // badger directory
	TTLHours int    `yaml:"ttl_hours"`
}

// LLMConfig configures answer synthesis and LLM entity extraction.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, anthropic, ollama, none
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// RerankConfig configures the optional reranker.
type RerankConfig struct {
	Provider   string `yaml:"provider"` // cohere, none
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ChunkProfile overrides chunk sizing for one source kind.
type ChunkProfile struct {
	MaxTokens     int `yaml:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
	MinChunkSize  int `yaml:"min_chunk_size"`
}

// ChunkingConfig holds tokenizer choice and per-kind overrides.
type ChunkingConfig struct {
	Tokenizer     string                  `yaml:"tokenizer"` // estimate, tiktoken
	CharsPerToken int                     `yaml:"chars_per_token"`
	Profiles      map[string]ChunkProfile `yaml:"profiles"`
}

// ExtractionConfig selects the entity extractor.
type ExtractionConfig struct {
	Mode          string   `yaml:"mode"` // pattern, llm
	Threshold     float64  `yaml:"threshold"`
	Types         []string `yaml:"types"`
	BusinessTypes bool     `yaml:"business_types"`
}

// IngestionConfig holds pipeline settings.
type IngestionConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// RetrievalConfig holds query pipeline knobs.
type RetrievalConfig struct {
	OversampleFactor    int     `yaml:"oversample_factor"`
	ScoreThreshold      float64 `yaml:"score_threshold"`
	GraphDocuments      int     `yaml:"graph_documents"`
	EntitiesPerDocument int     `yaml:"entities_per_document"`
	DefaultDepth        int     `yaml:"default_depth"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120 // synthesis can be slow
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	if c.VectorStore.Driver == "" {
		c.VectorStore.Driver = "redis"
	}
	if c.VectorStore.HNSWM <= 0 {
		c.VectorStore.HNSWM = 16
	}
	if c.VectorStore.HNSWEFConstruct <= 0 {
		c.VectorStore.HNSWEFConstruct = 200
	}

	e := &c.Embedding
	if e.Provider == "" {
		e.Provider = "openai"
	}
	if e.Model == "" {
		e.Model = "text-embedding-3-small"
	}
	if e.Dimensions <= 0 {
		e.Dimensions = 1536
	}
	if e.BatchSize <= 0 {
		e.BatchSize = 128
	}
	if e.RequestsPerSecond <= 0 {
		e.RequestsPerSecond = 10
	}
	if e.Burst <= 0 {
		e.Burst = 1
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = 5
	}
	if e.Cache.Backend == "" {
		e.Cache.Backend = "redis"
	}
	if e.Cache.Path == "" {
		e.Cache.Path = "data/embcache"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "none"
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 1024
	}

	if c.Rerank.Provider == "" {
		c.Rerank.Provider = "none"
	}
	if c.Rerank.Model == "" {
		c.Rerank.Model = "rerank-v3.5"
	}
	if c.Rerank.BaseURL == "" {
		c.Rerank.BaseURL = "https://api.cohere.com"
	}
	if c.Rerank.TimeoutSec <= 0 {
		c.Rerank.TimeoutSec = 10
	}

	if c.Chunking.Tokenizer == "" {
		c.Chunking.Tokenizer = "estimate"
	}
	if c.Chunking.CharsPerToken <= 0 {
		c.Chunking.CharsPerToken = 4
	}

	if c.Extraction.Mode == "" {
		c.Extraction.Mode = "pattern"
	}
	if c.Extraction.Threshold <= 0 {
		c.Extraction.Threshold = 0.5
	}

	if c.Ingestion.MaxConcurrent <= 0 {
		c.Ingestion.MaxConcurrent = 10
	}

	r := &c.Retrieval
	if r.OversampleFactor <= 0 {
		r.OversampleFactor = 2
	}
	if r.GraphDocuments <= 0 {
		r.GraphDocuments = 5
	}
	if r.EntitiesPerDocument <= 0 {
		r.EntitiesPerDocument = 10
	}
	if r.DefaultDepth <= 0 {
		r.DefaultDepth = 2
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return errors.New("database.addrs is required")
	}

	switch c.VectorStore.Driver {
	case "redis":
	case "pgvector":
		if c.VectorStore.PostgresDSN == "" {
			return errors.New("vector_store.postgres_dsn is required for pgvector")
		}
	default:
		return fmt.Errorf("vector_store.driver must be \"redis\" or \"pgvector\", got %q", c.VectorStore.Driver)
	}

	if err := oneOf("embedding.provider", c.Embedding.Provider, "openai", "ollama"); err != nil {
		return err
	}
	if err := oneOf("embedding.cache.backend", c.Embedding.Cache.Backend, "redis", "badger", "none"); err != nil {
		return err
	}
	if err := oneOf("llm.provider", c.LLM.Provider, "openai", "anthropic", "ollama", "none"); err != nil {
		return err
	}
	if err := oneOf("rerank.provider", c.Rerank.Provider, "cohere", "none"); err != nil {
		return err
	}
	if c.Rerank.Provider == "cohere" && c.Rerank.APIKey == "" {
		return errors.New("rerank.api_key is required for cohere")
	}
	if err := oneOf("chunking.tokenizer", c.Chunking.Tokenizer, "estimate", "tiktoken"); err != nil {
		return err
	}
	if err := oneOf("extraction.mode", c.Extraction.Mode, "pattern", "llm"); err != nil {
		return err
	}
	if c.Extraction.Mode == "llm" && c.LLM.Provider == "none" {
		return errors.New("extraction.mode \"llm\" requires an llm.provider")
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("retrieval.score_threshold must be in [0, 1], got %g", c.Retrieval.ScoreThreshold)
	}
	for kind, p := range c.Chunking.Profiles {
		if p.MaxTokens <= 0 {
			return fmt.Errorf("chunking.profiles.%s.max_tokens must be positive", kind)
		}
		if p.OverlapTokens < 0 || p.OverlapTokens >= p.MaxTokens {
			return fmt.Errorf("chunking.profiles.%s.overlap_tokens must be in [0, max_tokens)", kind)
		}
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := env + ".yaml"

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// Относительно исходника: internal/config -> корень проекта
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b)))
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
