package retrieval

import (
	"context"

	"github.com/tmc/langchaingo/llms"

	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
	"github.com/kailas-cloud/evergreen/internal/domain/search/filter"
	"github.com/kailas-cloud/evergreen/internal/domain/search/result"
)

// QueryEmbedder vectorizes a question.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex searches tenant chunks.
type VectorIndex interface {
	Search(
		ctx context.Context, tenant string, vector []float32,
		limit int, expr filter.Expression, threshold float64,
	) ([]result.Hit, error)
	DocumentVector(ctx context.Context, tenant, documentID string) ([]float32, error)
	Stats(ctx context.Context, tenant string) (query.CollectionStats, error)
	DropCollection(ctx context.Context, tenant string) error
}

// GraphIndex reads the tenant entity graph.
type GraphIndex interface {
	GetEntitiesByDocument(ctx context.Context, tenant, documentID string, limit int) ([]entity.Entity, error)
	FindEntitiesByName(ctx context.Context, tenant, pattern string, t entity.Type, limit int) ([]entity.Entity, error)
	GetEntitySubgraph(ctx context.Context, tenant, entityID string, depth int) (entity.Subgraph, error)
	GetEntityDocuments(ctx context.Context, tenant, entityID string, limit int) ([]string, error)
	Stats(ctx context.Context, tenant string) (query.GraphStats, error)
	DropGraph(ctx context.Context, tenant string) error
}

// Reranker orders documents by relevance to a query.
type Reranker interface {
	Rerank(ctx context.Context, q string, documents []string, topN int) ([]query.Ranked, error)
}

// Generator produces chat completions. Every langchaingo llms.Model is one.
type Generator interface {
	GenerateContent(
		ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption,
	) (*llms.ContentResponse, error)
}
