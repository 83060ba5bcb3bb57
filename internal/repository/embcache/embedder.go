// Package embcache memoizes embeddings in a key-value store.
//
// Keys are sha256 of the exact text the provider would see, so instruction
// prefixes applied above the cache keep document and query vectors apart.
// Concurrent lookups of one text share a single provider call, and a batch
// embeds each distinct missing text once: quoted replies and signatures
// repeat a lot across a mailbox.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/evergreen/internal/db"
	"github.com/kailas-cloud/evergreen/internal/domain"
)

var keyPrefix = domain.KeyPrefix + "emb_cache:"

// Store is the cache backend: Redis or the on-disk Badger KV.
type Store = db.KVStore

type Options struct {
	// Namespace keeps vectors of different provider/model pairs apart.
	Namespace string
	// TTL of an entry; zero never expires.
	TTL time.Duration
	// Dimensions, when set, turns entries of any other length into misses.
	Dimensions int
}

type CachedEmbedder struct {
	inner  domain.Embedder
	store  Store
	opts   Options
	total  *prometheus.CounterVec
	flight singleflight.Group
	logger *zap.Logger
}

// New wraps inner. total is labelled result="hit"|"miss" and may be nil.
func New(inner domain.Embedder, store Store, opts Options, total *prometheus.CounterVec, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{inner: inner, store: store, opts: opts, total: total, logger: logger}
}

// Embed serves text from the cache when it can. Hits report zero tokens.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)
	if vec, ok := c.lookup(ctx, key); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	v, err, shared := c.flight.Do(key, func() (any, error) {
		res, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.store1(ctx, key, res.Embedding)
		return res, nil
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	res := v.(domain.EmbeddingResult)
	if shared {
		// Токены уже учтены у того, кто сделал запрос.
		res.PromptTokens, res.TotalTokens = 0, 0
	}
	return res, nil
}

// BatchEmbed answers hits from the cache and sends every distinct missing
// text to the provider in one batch. Output follows input order.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	pending := make(map[string][]int) // key -> positions waiting for it
	var misses []string
	var missKeys []string

	for i, text := range texts {
		keys[i] = c.key(text)
		if at, seen := pending[keys[i]]; seen {
			pending[keys[i]] = append(at, i)
			continue
		}
		if vec, ok := c.lookup(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		pending[keys[i]] = []int{i}
		misses = append(misses, text)
		missKeys = append(missKeys, keys[i])
	}
	if len(misses) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: out}, nil
	}

	res, err := domain.EmbedBatch(ctx, c.inner, misses)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed %d cache misses: %w", len(misses), err)
	}
	if len(res.Embeddings) != len(misses) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("provider returned %d vectors for %d texts: %w",
			len(res.Embeddings), len(misses), domain.ErrEmbeddingProviderError)
	}

	for j, key := range missKeys {
		vec := res.Embeddings[j]
		for _, i := range pending[key] {
			out[i] = vec
		}
		c.store1(ctx, key, vec)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // pass-through
	}
	return nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	digest := hex.EncodeToString(sum[:])
	if c.opts.Namespace != "" {
		return keyPrefix + c.opts.Namespace + ":" + digest
	}
	return keyPrefix + digest
}

// lookup never fails: backend errors and corrupt entries count as misses.
func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	vec, err := c.read(ctx, key)
	switch {
	case err == nil:
		c.count("hit")
		return vec, true
	case !errors.Is(err, db.ErrKeyNotFound):
		c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
	}
	c.count("miss")
	return nil, false
}

func (c *CachedEmbedder) read(ctx context.Context, key string) ([]float32, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err //nolint:wrapcheck // classified by lookup
	}
	if len(data) == 0 {
		return nil, db.ErrKeyNotFound
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil, err
	}
	if c.opts.Dimensions > 0 && len(vec) != c.opts.Dimensions {
		return nil, fmt.Errorf("cached vector has %d dimensions, want %d", len(vec), c.opts.Dimensions)
	}
	return vec, nil
}

// store1 writes one entry. Failures are logged; the vector is still served.
func (c *CachedEmbedder) store1(ctx context.Context, key string, vec []float32) {
	var err error
	if c.opts.TTL > 0 {
		err = c.store.SetWithTTL(ctx, key, encodeVector(vec), c.opts.TTL)
	} else {
		err = c.store.Set(ctx, key, encodeVector(vec))
	}
	if err != nil {
		c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedEmbedder) count(result string) {
	if c.total != nil {
		c.total.WithLabelValues(result).Inc()
	}
}

// encodeVector lays the vector out as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 0, 4*len(v))
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("corrupt cache entry: %d bytes", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
