package embedding

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/repository/embcache"
)

// CacheStore is what a chain needs from the embedding cache backend.
type CacheStore = embcache.Store

// ChainConfig describes one decorator chain.
type ChainConfig struct {
	Instruction    string
	Cache          CacheStore // nil disables caching
	CacheNamespace string
	CacheTTL       time.Duration
	CacheTotal     *prometheus.CounterVec
	Dimensions     int
}

// BuildChain wraps a transport as transport -> cache -> instruction.
// The instruction is applied outermost, so the cache keys include it and
// document and query vectors never collide.
func BuildChain(transport domain.Embedder, cfg ChainConfig, logger *zap.Logger) domain.Embedder {
	var e domain.Embedder = transport
	if cfg.Cache != nil {
		e = embcache.New(e, cfg.Cache, embcache.Options{
			Namespace:  cfg.CacheNamespace,
			TTL:        cfg.CacheTTL,
			Dimensions: cfg.Dimensions,
		}, cfg.CacheTotal, logger)
	}
	if cfg.Instruction != "" {
		e = domain.NewInstructionEmbedder(e, cfg.Instruction)
	}
	return e
}
