package retrieval

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
	"github.com/kailas-cloud/evergreen/internal/domain/search/filter"
	"github.com/kailas-cloud/evergreen/internal/domain/search/result"
)

type mockEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	return m.vector, m.err
}

type searchCall struct {
	limit     int
	expr      filter.Expression
	threshold float64
}

type mockVectors struct {
	searchFn    func(limit int) ([]result.Hit, error)
	docVectorFn func(documentID string) ([]float32, error)
	stats       query.CollectionStats
	dropErr     error
	searchCalls []searchCall
	dropped     []string
}

func (m *mockVectors) Search(
	_ context.Context, _ string, _ []float32, limit int, expr filter.Expression, threshold float64,
) ([]result.Hit, error) {
	m.searchCalls = append(m.searchCalls, searchCall{limit: limit, expr: expr, threshold: threshold})
	if m.searchFn != nil {
		return m.searchFn(limit)
	}
	return nil, nil
}

func (m *mockVectors) DocumentVector(_ context.Context, _, documentID string) ([]float32, error) {
	if m.docVectorFn != nil {
		return m.docVectorFn(documentID)
	}
	return []float32{1, 0}, nil
}

func (m *mockVectors) Stats(context.Context, string) (query.CollectionStats, error) {
	return m.stats, nil
}

func (m *mockVectors) DropCollection(_ context.Context, tenant string) error {
	m.dropped = append(m.dropped, tenant)
	return m.dropErr
}

type mockGraph struct {
	mu         sync.Mutex
	byDocFn    func(documentID string) ([]entity.Entity, error)
	byDocCalls []string
	findFn     func(pattern string, t entity.Type, limit int) ([]entity.Entity, error)
	subgraph   entity.Subgraph
	depths     []int
	documents  []string
	docLimits  []int
	stats      query.GraphStats
	dropped    []string
}

func (m *mockGraph) GetEntitiesByDocument(_ context.Context, _, documentID string, _ int) ([]entity.Entity, error) {
	m.mu.Lock()
	m.byDocCalls = append(m.byDocCalls, documentID)
	m.mu.Unlock()
	if m.byDocFn != nil {
		return m.byDocFn(documentID)
	}
	return nil, nil
}

func (m *mockGraph) FindEntitiesByName(
	_ context.Context, _, pattern string, t entity.Type, limit int,
) ([]entity.Entity, error) {
	if m.findFn != nil {
		return m.findFn(pattern, t, limit)
	}
	return nil, nil
}

func (m *mockGraph) GetEntitySubgraph(_ context.Context, _, _ string, depth int) (entity.Subgraph, error) {
	m.depths = append(m.depths, depth)
	return m.subgraph, nil
}

func (m *mockGraph) GetEntityDocuments(_ context.Context, _, _ string, limit int) ([]string, error) {
	m.docLimits = append(m.docLimits, limit)
	return m.documents, nil
}

func (m *mockGraph) Stats(context.Context, string) (query.GraphStats, error) {
	return m.stats, nil
}

func (m *mockGraph) DropGraph(_ context.Context, tenant string) error {
	m.dropped = append(m.dropped, tenant)
	return nil
}

type mockReranker struct {
	ranked []query.Ranked
	err    error
	docs   []string
	topN   int
}

func (m *mockReranker) Rerank(_ context.Context, _ string, documents []string, topN int) ([]query.Ranked, error) {
	m.docs = documents
	m.topN = topN
	return m.ranked, m.err
}

type mockGenerator struct {
	answer   string
	err      error
	calls    int
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (m *mockGenerator) GenerateContent(
	_ context.Context, messages []llms.MessageContent, options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	m.calls++
	m.messages = messages
	for _, o := range options {
		o(&m.opts)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answer}}}, nil
}

func hits(n int, docOf func(i int) string) []result.Hit {
	out := make([]result.Hit, n)
	for i := range out {
		out[i] = result.New(
			"chunk-"+string(rune('a'+i)),
			docOf(i),
			1-float64(i)*0.05,
			"content "+string(rune('a'+i)),
			map[string]string{"source": "slack", "title": "standup", "timestamp": "2024-03-03T10:00:00Z"},
		)
	}
	return out
}

func docPerHit(i int) string { return "doc-" + string(rune('0'+i)) }
