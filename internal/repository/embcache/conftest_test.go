package embcache

import (
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/evergreen/internal/db"
	"github.com/kailas-cloud/evergreen/internal/domain"
)

// lengthProvider embeds a text as [len(text)] and bills one token per text.
type lengthProvider struct {
	mu      sync.Mutex
	single  []string
	batches [][]string
	err     error
	short   bool
}

func (p *lengthProvider) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.single = append(p.single, text)
	if p.err != nil {
		return domain.EmbeddingResult{}, p.err
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text))}, PromptTokens: 1, TotalTokens: 1}, nil
}

func (p *lengthProvider) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, texts)
	if p.err != nil {
		return domain.BatchEmbeddingResult{}, p.err
	}
	n := len(texts)
	if p.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, PromptTokens: n, TotalTokens: n}, nil
}

// memStore is an in-memory Store that records how values were written.
type memStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	ttls     map[string]time.Duration
	getErr   error
	setErr   error
	getCalls int
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) Set(ctx context.Context, key string, value []byte) error {
	return m.SetWithTTL(ctx, key, value, 0)
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}
