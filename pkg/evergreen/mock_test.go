package evergreen

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

// --- ingestionUseCase mock ---

type mockIngestion struct {
	ingestFn func(ctx context.Context, raw document.RawDocument) ingest.IndexedDocument
	batchFn  func(ctx context.Context, docs []document.RawDocument, maxConcurrent int) batch.Report
	statusFn func(ctx context.Context, tenant, id string) (ingest.IndexedDocument, error)
	deleteFn func(ctx context.Context, tenant, id string) (ingestionuc.Deletion, error)
}

func (m *mockIngestion) Ingest(ctx context.Context, raw document.RawDocument) ingest.IndexedDocument {
	return m.ingestFn(ctx, raw)
}

func (m *mockIngestion) IngestBatch(ctx context.Context, docs []document.RawDocument, n int) batch.Report {
	return m.batchFn(ctx, docs, n)
}

func (m *mockIngestion) Status(ctx context.Context, tenant, id string) (ingest.IndexedDocument, error) {
	return m.statusFn(ctx, tenant, id)
}

func (m *mockIngestion) Delete(ctx context.Context, tenant, id string) (ingestionuc.Deletion, error) {
	return m.deleteFn(ctx, tenant, id)
}

// --- retrievalUseCase mock ---

type mockRetrieval struct {
	queryFn   func(ctx context.Context, tenant string, req query.Request) (query.Result, error)
	contextFn func(ctx context.Context, tenant, name string, t entity.Type) (query.EntityContext, error)
	searchFn  func(ctx context.Context, tenant, pattern string, t entity.Type, limit int) ([]entity.Entity, error)
	similarFn func(ctx context.Context, tenant, documentID string, topK int) ([]query.SimilarDocument, error)
	statsFn   func(ctx context.Context, tenant string) (query.Stats, error)
	dropErr   error
	dropped   []string
}

func (m *mockRetrieval) Query(ctx context.Context, tenant string, req query.Request) (query.Result, error) {
	return m.queryFn(ctx, tenant, req)
}

func (m *mockRetrieval) EntityContext(
	ctx context.Context, tenant, name string, t entity.Type,
) (query.EntityContext, error) {
	return m.contextFn(ctx, tenant, name, t)
}

func (m *mockRetrieval) SearchEntities(
	ctx context.Context, tenant, pattern string, t entity.Type, limit int,
) ([]entity.Entity, error) {
	return m.searchFn(ctx, tenant, pattern, t, limit)
}

func (m *mockRetrieval) FindSimilar(
	ctx context.Context, tenant, documentID string, topK int,
) ([]query.SimilarDocument, error) {
	return m.similarFn(ctx, tenant, documentID, topK)
}

func (m *mockRetrieval) Stats(ctx context.Context, tenant string) (query.Stats, error) {
	return m.statsFn(ctx, tenant)
}

func (m *mockRetrieval) DropTenant(_ context.Context, tenant string) error {
	if m.dropErr != nil {
		return m.dropErr
	}
	m.dropped = append(m.dropped, tenant)
	return nil
}

// --- statusUseCase mock ---

type mockStatuses struct {
	dropped []string
}

func (m *mockStatuses) DeleteTenant(_ context.Context, tenant string) (int, error) {
	m.dropped = append(m.dropped, tenant)
	return 3, nil
}

// --- healthUseCase mock ---

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }
