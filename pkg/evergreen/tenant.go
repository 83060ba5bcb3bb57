package evergreen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/ingest"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
)

// TenantClient runs every operation against a single tenant.
type TenantClient struct {
	c      *Client
	tenant string
}

// ID returns the tenant id.
func (t *TenantClient) ID() string { return t.tenant }

// Ingest indexes one document into the tenant. The document's TenantID is
// overwritten. Failures are reported in the returned record, never as an error.
func (t *TenantClient) Ingest(ctx context.Context, doc Document) IndexedDocument {
	start := time.Now()
	doc.TenantID = t.tenant
	rec := t.c.ingestion.Ingest(ctx, doc)
	t.c.obs.observe("ingest", t.tenant, start, recordErr(rec))
	return rec
}

// IngestBatch indexes documents with at most maxConcurrent in flight.
// Zero uses the configured default.
func (t *TenantClient) IngestBatch(ctx context.Context, docs []Document, maxConcurrent int) BatchReport {
	start := time.Now()
	scoped := make([]Document, len(docs))
	for i := range docs {
		scoped[i] = docs[i]
		scoped[i].TenantID = t.tenant
	}
	report := t.c.ingestion.IngestBatch(ctx, scoped, maxConcurrent)

	var err error
	if report.Failed > 0 {
		err = fmt.Errorf("%d of %d documents failed", report.Failed, report.Total)
	}
	t.c.obs.observe("ingest_batch", t.tenant, start, err)
	return report
}

// Status returns the stored ingestion record of a document.
func (t *TenantClient) Status(ctx context.Context, documentID string) (IndexedDocument, error) {
	start := time.Now()
	rec, err := t.c.ingestion.Status(ctx, t.tenant, documentID)
	t.c.obs.observe("status", t.tenant, start, err)
	if err != nil {
		return IndexedDocument{}, fmt.Errorf("status %s: %w", documentID, err)
	}
	return rec, nil
}

// Delete removes a document's chunks, graph mentions and status record.
func (t *TenantClient) Delete(ctx context.Context, documentID string) (Deletion, error) {
	start := time.Now()
	del, err := t.c.ingestion.Delete(ctx, t.tenant, documentID)
	t.c.obs.observe("delete", t.tenant, start, err)
	if err != nil {
		return Deletion{}, fmt.Errorf("delete %s: %w", documentID, err)
	}
	return del, nil
}

// Query answers a question from the tenant's documents.
func (t *TenantClient) Query(ctx context.Context, text string, opts ...QueryOption) (QueryResult, error) {
	start := time.Now()
	req := query.NewRequest(text)
	for _, o := range opts {
		o(&req)
	}
	res, err := t.c.retrieval.Query(ctx, t.tenant, req)
	t.c.obs.observe("query", t.tenant, start, err)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query: %w", err)
	}
	return res, nil
}

// EntityContext returns an entity with its neighbourhood. An empty type
// matches any type. A miss is reported through Found, not an error.
func (t *TenantClient) EntityContext(ctx context.Context, name string, typ EntityType) (EntityContext, error) {
	start := time.Now()
	ec, err := t.c.retrieval.EntityContext(ctx, t.tenant, name, typ)
	t.c.obs.observe("entity_context", t.tenant, start, err)
	if err != nil {
		return EntityContext{}, fmt.Errorf("entity context %q: %w", name, err)
	}
	return ec, nil
}

// SearchEntities lists entities whose name contains pattern.
func (t *TenantClient) SearchEntities(
	ctx context.Context, pattern string, typ EntityType, limit int,
) ([]Entity, error) {
	start := time.Now()
	found, err := t.c.retrieval.SearchEntities(ctx, t.tenant, pattern, typ, limit)
	t.c.obs.observe("search_entities", t.tenant, start, err)
	if err != nil {
		return nil, fmt.Errorf("search entities: %w", err)
	}
	return found, nil
}

// FindSimilar returns up to topK other documents close to documentID.
func (t *TenantClient) FindSimilar(ctx context.Context, documentID string, topK int) ([]SimilarDocument, error) {
	start := time.Now()
	similar, err := t.c.retrieval.FindSimilar(ctx, t.tenant, documentID, topK)
	t.c.obs.observe("find_similar", t.tenant, start, err)
	if err != nil {
		return nil, fmt.Errorf("find similar to %s: %w", documentID, err)
	}
	return similar, nil
}

// Stats summarizes the tenant's index.
func (t *TenantClient) Stats(ctx context.Context) (Stats, error) {
	start := time.Now()
	st, err := t.c.retrieval.Stats(ctx, t.tenant)
	t.c.obs.observe("stats", t.tenant, start, err)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Drop deletes every chunk, entity, relationship and status record of the
// tenant. Status records are kept when the index drop fails.
func (t *TenantClient) Drop(ctx context.Context) error {
	start := time.Now()
	err := t.drop(ctx)
	t.c.obs.observe("drop_tenant", t.tenant, start, err)
	return err
}

func (t *TenantClient) drop(ctx context.Context) error {
	if err := t.c.retrieval.DropTenant(ctx, t.tenant); err != nil {
		return fmt.Errorf("drop tenant: %w", err)
	}
	if _, err := t.c.statuses.DeleteTenant(ctx, t.tenant); err != nil {
		return fmt.Errorf("drop tenant statuses: %w", err)
	}
	return nil
}

func recordErr(rec ingest.IndexedDocument) error {
	if rec.Status != ingest.StatusFailed {
		return nil
	}
	return errors.New(rec.ErrorMessage)
}

// QueryOption adjusts a query request.
type QueryOption func(*query.Request)

// TopK sets how many sources to return (1-100, default 10).
func TopK(n int) QueryOption {
	return func(r *query.Request) { r.TopK = n }
}

// Filter restricts sources by a metadata field. Value may be a string, a
// []string matching any element, or a numeric range map for timestamp.
func Filter(field string, value any) QueryOption {
	return func(r *query.Request) {
		if r.Filters == nil {
			r.Filters = make(map[string]any)
		}
		r.Filters[field] = value
	}
}

// SkipGraph disables entity augmentation.
func SkipGraph() QueryOption {
	return func(r *query.Request) { r.IncludeGraph = false }
}

// SkipSynthesis returns sources without generating an answer.
func SkipSynthesis() QueryOption {
	return func(r *query.Request) { r.Synthesize = false }
}

// EntityTypes lists the built-in entity types, business types last.
func EntityTypes() []EntityType {
	return entity.BusinessTypes()
}
