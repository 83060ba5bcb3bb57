package chi

import (
	"context"

	"github.com/kailas-cloud/evergreen/internal/domain/batch"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/ingest"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
	healthuc "github.com/kailas-cloud/evergreen/internal/usecase/health"
	ingestionuc "github.com/kailas-cloud/evergreen/internal/usecase/ingestion"
)

// Ingestor is the write side of the API.
type Ingestor interface {
	Ingest(ctx context.Context, raw document.RawDocument) ingest.IndexedDocument
	IngestBatch(ctx context.Context, docs []document.RawDocument, maxConcurrent int) batch.Report
	Status(ctx context.Context, tenant, id string) (ingest.IndexedDocument, error)
	Delete(ctx context.Context, tenant, id string) (ingestionuc.Deletion, error)
}

// Retriever is the read side of the API.
type Retriever interface {
	Query(ctx context.Context, tenant string, req query.Request) (query.Result, error)
	EntityContext(ctx context.Context, tenant, name string, t entity.Type) (query.EntityContext, error)
	SearchEntities(ctx context.Context, tenant, pattern string, t entity.Type, limit int) ([]entity.Entity, error)
	FindSimilar(ctx context.Context, tenant, documentID string, topK int) ([]query.SimilarDocument, error)
	Stats(ctx context.Context, tenant string) (query.Stats, error)
	DropTenant(ctx context.Context, tenant string) error
}

// TenantStatuses drops every status record of a tenant.
type TenantStatuses interface {
	DeleteTenant(ctx context.Context, tenant string) (int, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
