// Package query holds retrieval requests and answers.
package query

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
)

// Top-K bounds.
const (
	DefaultTopK = 10
	MaxTopK     = 100
)

// Request is a natural-language question against one tenant.
type Request struct {
	Query        string         `json:"query"`
	TopK         int            `json:"top_k"`
	Filters      map[string]any `json:"filters,omitempty"`
	IncludeGraph bool           `json:"include_graph"`
	Synthesize   bool           `json:"synthesize"`
}

// NewRequest returns a request with the default options: graph and synthesis enabled.
func NewRequest(q string) Request {
	return Request{Query: q, TopK: DefaultTopK, IncludeGraph: true, Synthesize: true}
}

// Validate applies the TopK default and checks bounds.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("query text is required: %w", domain.ErrInvalidQuery)
	}
	if r.TopK == 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK < 1 || r.TopK > MaxTopK {
		return fmt.Errorf("top_k must be between 1 and %d: %w", MaxTopK, domain.ErrInvalidQuery)
	}
	return nil
}

// Source is a chunk that supported an answer.
type Source struct {
	ChunkID     string            `json:"chunk_id"`
	DocumentID  string            `json:"document_id"`
	Content     string            `json:"content"`
	Score       float64           `json:"score"`
	RerankScore *float64          `json:"rerank_score,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Result is the answer to a Request.
type Result struct {
	Answer     string          `json:"answer"`
	Sources    []Source        `json:"sources"`
	Entities   []entity.Entity `json:"entities"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning,omitempty"`
}

// EntityContext is everything the graph knows about one entity.
type EntityContext struct {
	Found         bool                  `json:"found"`
	Entity        *entity.Entity        `json:"entity,omitempty"`
	RelatedNodes  []entity.Entity       `json:"related_entities,omitempty"`
	Relationships []entity.Relationship `json:"relationships,omitempty"`
	DocumentIDs   []string              `json:"document_ids,omitempty"`
}

// Stats summarizes a tenant's index.
type Stats struct {
	Tenant        string `json:"tenant"`
	Chunks        int    `json:"chunks"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
	Documents     int    `json:"documents"`
	Dimensions    int    `json:"dimensions"`
}

// CollectionStats is what a vector backend reports about a tenant collection.
type CollectionStats struct {
	Chunks     int
	Documents  int
	Dimensions int
}

// GraphStats is what the graph reports about a tenant graph.
type GraphStats struct {
	Entities      int
	Relationships int
	Documents     int
}

// SimilarDocument is a document close to a reference document.
type SimilarDocument struct {
	DocumentID string            `json:"document_id"`
	ChunkID    string            `json:"chunk_id"`
	Score      float64           `json:"score"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Ranked is one reranker verdict: the position of a document in the
// reranker input and its relevance score.
type Ranked struct {
	Index int
	Score float64
}
