package ingestion

import (
	"context"

	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/ingest"
)

// Parser normalizes a document body.
type Parser interface {
	Parse(ctx context.Context, d document.RawDocument) document.RawDocument
}

// Chunker splits a parsed document.
type Chunker interface {
	Chunk(d document.RawDocument) ([]chunk.Chunk, error)
}

// Extractor finds entities and relationships in chunk text.
type Extractor interface {
	ExtractFromChunk(ctx context.Context, c chunk.Chunk) ([]entity.Entity, []entity.Mention, error)
	ExtractRelationships(ctx context.Context, text string, entities []entity.Entity) ([]entity.Relationship, error)
}

// Embedder vectorizes chunks.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []chunk.Chunk) ([]chunk.Embedded, error)
}

// VectorIndex stores chunk vectors per tenant.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, tenant string) error
	Upsert(ctx context.Context, tenant string, chunks []chunk.Embedded) (int, error)
	DeleteByDocument(ctx context.Context, tenant, documentID string) (int, error)
}

// GraphIndex stores entities and their links per tenant.
type GraphIndex interface {
	EnsureSchema(ctx context.Context, tenant string) error
	CreateEntity(ctx context.Context, tenant string, e entity.Entity) (string, error)
	CreateRelationship(ctx context.Context, tenant string, rel entity.Relationship) (string, error)
	LinkEntityToDocument(ctx context.Context, tenant, entityID, documentID, mentionText string, position int) error
	DeleteDocumentEntities(ctx context.Context, tenant, documentID string) (int, error)
}

// StatusStore persists ingestion records.
type StatusStore interface {
	Save(ctx context.Context, d *ingest.IndexedDocument) error
	Get(ctx context.Context, tenant, id string) (ingest.IndexedDocument, error)
	Delete(ctx context.Context, tenant, id string) error
}
