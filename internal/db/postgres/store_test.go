package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/domain/search/filter"
)

func TestRelationsFor_ShortTenantReadable(t *testing.T) {
	rel, err := relationsFor("acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rel.table != `"evergreen_acme_chunks"` {
		t.Errorf("table = %s", rel.table)
	}
	if rel.docIndex != `"evergreen_acme_doc_idx"` || rel.embeddingIndex != `"evergreen_acme_embedding_idx"` {
		t.Errorf("indexes = %s, %s", rel.docIndex, rel.embeddingIndex)
	}
}

// Postgres truncates identifiers to 63 bytes, so names must already differ
// within that many bytes.
func TestRelationsFor_LongTenantsStayApart(t *testing.T) {
	alpha := strings.Repeat("t", 60) + "alpha"
	beta := strings.Repeat("t", 60) + "beta"
	// 39 chars is the longest tenant kept verbatim; shaped like a digest name.
	edge := strings.Repeat("t", 22) + "_" + strings.Repeat("0", 16)

	seen := map[string]string{}
	for _, tenant := range []string{alpha, beta, edge, "acme"} {
		rel, err := relationsFor(tenant)
		if err != nil {
			t.Fatalf("relationsFor(%s): %v", tenant, err)
		}
		for _, name := range []string{rel.table, rel.docIndex, rel.embeddingIndex} {
			raw := strings.Trim(name, `"`)
			if len(raw) > maxIdentifier {
				t.Errorf("%s is %d bytes", raw, len(raw))
			}
			if other, dup := seen[raw]; dup {
				t.Errorf("tenants %s and %s share %s", other, tenant, raw)
			}
			seen[raw] = tenant
		}
	}
	if !strings.HasPrefix(strings.Trim(mustTable(t, alpha), `"`), "evergreen_tttt") {
		t.Errorf("long tenant lost its readable head: %s", mustTable(t, alpha))
	}
}

func TestRelationsFor_Deterministic(t *testing.T) {
	long := strings.Repeat("x", 100)
	if mustTable(t, long) != mustTable(t, long) {
		t.Error("table name must not change between calls")
	}
}

func TestRelationsFor_InvalidTenant(t *testing.T) {
	if _, err := relationsFor(`acme"; DROP TABLE x; --`); !errors.Is(err, domain.ErrInvalidTenant) {
		t.Fatalf("expected ErrInvalidTenant, got %v", err)
	}
}

func mustTable(t *testing.T, tenant string) string {
	t.Helper()
	table, err := tableName(tenant)
	if err != nil {
		t.Fatalf("tableName(%s): %v", tenant, err)
	}
	return table
}

// --- against a live database ---

func newLiveStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := os.Getenv("EVERGREEN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EVERGREEN_TEST_POSTGRES_DSN not set")
	}
	s, err := New(context.Background(), Config{DSN: dsn, Dimensions: 3}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func embedded(tenant, docID string, vec []float32) chunk.Embedded {
	return chunk.Embedded{
		Chunk: chunk.Chunk{
			ID:         chunk.ID(docID, 0),
			DocumentID: docID,
			TenantID:   tenant,
			Content:    "renewal signed by " + tenant,
			Metadata: map[string]string{
				chunk.MetaSource:    "slack",
				chunk.MetaTimestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
			},
		},
		Vector: vec,
	}
}

func TestTenantsIsolated(t *testing.T) {
	s := newLiveStore(t)
	ctx := context.Background()
	a := strings.Repeat("t", 60) + "alpha"
	b := strings.Repeat("t", 60) + "beta"
	for _, tenant := range []string{a, b} {
		t.Cleanup(func() { _ = s.DropCollection(context.Background(), tenant) })
		if err := s.EnsureCollection(ctx, tenant); err != nil {
			t.Fatalf("EnsureCollection(%s): %v", tenant, err)
		}
	}

	// Один и тот же document id у обоих арендаторов.
	if _, err := s.Upsert(ctx, a, []chunk.Embedded{embedded(a, "d1", []float32{1, 0, 0})}); err != nil {
		t.Fatalf("Upsert a: %v", err)
	}
	if _, err := s.Upsert(ctx, b, []chunk.Embedded{
		embedded(b, "d1", []float32{1, 0, 0}),
		embedded(b, "d2", []float32{0, 1, 0}),
	}); err != nil {
		t.Fatalf("Upsert b: %v", err)
	}

	hits, err := s.Search(ctx, a, []float32{1, 0, 0}, 10, filter.Expression{}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || !strings.HasSuffix(hits[0].Content(), a) {
		t.Errorf("tenant a sees %d hits: %+v", len(hits), hits)
	}

	if st, _ := s.Stats(ctx, a); st.Chunks != 1 || st.Documents != 1 {
		t.Errorf("stats a = %+v", st)
	}
	if err := s.DropCollection(ctx, a); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
	if st, _ := s.Stats(ctx, b); st.Chunks != 2 || st.Documents != 2 {
		t.Errorf("dropping a changed b: %+v", st)
	}
}
