package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain/batch"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/ingest"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
	healthuc "github.com/kailas-cloud/evergreen/internal/usecase/health"
	ingestionuc "github.com/kailas-cloud/evergreen/internal/usecase/ingestion"
)

type mockIngestor struct {
	ingestFn func(ctx context.Context, raw document.RawDocument) ingest.IndexedDocument
	batchFn  func(ctx context.Context, docs []document.RawDocument, maxConcurrent int) batch.Report
	statusFn func(ctx context.Context, tenant, id string) (ingest.IndexedDocument, error)
	deleteFn func(ctx context.Context, tenant, id string) (ingestionuc.Deletion, error)
}

func (m *mockIngestor) Ingest(ctx context.Context, raw document.RawDocument) ingest.IndexedDocument {
	return m.ingestFn(ctx, raw)
}

func (m *mockIngestor) IngestBatch(ctx context.Context, docs []document.RawDocument, n int) batch.Report {
	return m.batchFn(ctx, docs, n)
}

func (m *mockIngestor) Status(ctx context.Context, tenant, id string) (ingest.IndexedDocument, error) {
	return m.statusFn(ctx, tenant, id)
}

func (m *mockIngestor) Delete(ctx context.Context, tenant, id string) (ingestionuc.Deletion, error) {
	return m.deleteFn(ctx, tenant, id)
}

type mockRetriever struct {
	queryFn   func(ctx context.Context, tenant string, req query.Request) (query.Result, error)
	contextFn func(ctx context.Context, tenant, name string, t entity.Type) (query.EntityContext, error)
	searchFn  func(ctx context.Context, tenant, pattern string, t entity.Type, limit int) ([]entity.Entity, error)
	similarFn func(ctx context.Context, tenant, id string, topK int) ([]query.SimilarDocument, error)
	statsFn   func(ctx context.Context, tenant string) (query.Stats, error)
	dropFn    func(ctx context.Context, tenant string) error
}

func (m *mockRetriever) Query(ctx context.Context, tenant string, req query.Request) (query.Result, error) {
	return m.queryFn(ctx, tenant, req)
}

func (m *mockRetriever) EntityContext(ctx context.Context, tenant, name string, t entity.Type) (query.EntityContext, error) {
	return m.contextFn(ctx, tenant, name, t)
}

func (m *mockRetriever) SearchEntities(
	ctx context.Context, tenant, pattern string, t entity.Type, limit int,
) ([]entity.Entity, error) {
	return m.searchFn(ctx, tenant, pattern, t, limit)
}

func (m *mockRetriever) FindSimilar(ctx context.Context, tenant, id string, topK int) ([]query.SimilarDocument, error) {
	return m.similarFn(ctx, tenant, id, topK)
}

func (m *mockRetriever) Stats(ctx context.Context, tenant string) (query.Stats, error) {
	return m.statsFn(ctx, tenant)
}

func (m *mockRetriever) DropTenant(ctx context.Context, tenant string) error {
	return m.dropFn(ctx, tenant)
}

type mockStatuses struct {
	dropped []string
	err     error
}

func (m *mockStatuses) DeleteTenant(_ context.Context, tenant string) (int, error) {
	m.dropped = append(m.dropped, tenant)
	return 4, m.err
}

type mockHealth struct{ report healthuc.Report }

func (m mockHealth) Check(context.Context) healthuc.Report { return m.report }

func newTestServer(ing *mockIngestor, ret *mockRetriever, st *mockStatuses) http.Handler {
	if ing == nil {
		ing = &mockIngestor{}
	}
	if ret == nil {
		ret = &mockRetriever{}
	}
	var statuses TenantStatuses
	if st != nil {
		statuses = st
	}
	h := mockHealth{report: healthuc.Report{Status: healthuc.Healthy}}
	return NewServer(ing, ret, statuses, h, nil).WithMaxBatchSize(3).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func nopLogger() *zap.Logger { return zap.NewNop() }
