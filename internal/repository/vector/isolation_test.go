package vector

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/kailas-cloud/evergreen/internal/db"
	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/domain/search/filter"
)

// keyspace behaves like one shared Redis: hashes live in a flat key space
// and an index sees exactly the keys under its prefixes.
type keyspace struct {
	hashes  map[string]map[string]string
	indexes map[string][]string // name -> prefixes
}

func newKeyspace() *keyspace {
	return &keyspace{hashes: map[string]map[string]string{}, indexes: map[string][]string{}}
}

func (k *keyspace) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if _, ok := k.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	k.indexes[def.Name] = def.Prefixes
	return nil
}

func (k *keyspace) DropIndex(_ context.Context, name string, deleteDocs bool) error {
	if _, ok := k.indexes[name]; !ok {
		return db.ErrIndexNotFound
	}
	if deleteDocs {
		for _, key := range k.covered(name) {
			delete(k.hashes, key)
		}
	}
	delete(k.indexes, name)
	return nil
}

func (k *keyspace) IndexExists(_ context.Context, name string) (bool, error) {
	_, ok := k.indexes[name]
	return ok, nil
}

func (k *keyspace) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	for _, it := range items {
		k.hashes[it.Key] = it.Fields
	}
	return nil
}

func (k *keyspace) HGet(_ context.Context, key, field string) (string, error) {
	h, ok := k.hashes[key]
	if !ok {
		return "", db.ErrKeyNotFound
	}
	return h[field], nil
}

func (k *keyspace) DelMulti(_ context.Context, keys []string) (int, error) {
	n := 0
	for _, key := range keys {
		if _, ok := k.hashes[key]; ok {
			delete(k.hashes, key)
			n++
		}
	}
	return n, nil
}

func (k *keyspace) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	return k.list(q.IndexName, q.Filters, 1)
}

func (k *keyspace) SearchList(_ context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	return k.list(q.IndexName, q.Filters, 0)
}

func (k *keyspace) SearchCount(_ context.Context, index, _ string) (int, error) {
	if _, ok := k.indexes[index]; !ok {
		return 0, db.ErrIndexNotFound
	}
	return len(k.covered(index)), nil
}

func (k *keyspace) CountDistinct(_ context.Context, index, field string) (int, error) {
	if _, ok := k.indexes[index]; !ok {
		return 0, db.ErrIndexNotFound
	}
	seen := map[string]bool{}
	for _, key := range k.covered(index) {
		seen[k.hashes[key][field]] = true
	}
	return len(seen), nil
}

// list applies the must-match conditions of expr; ranges are not needed here.
func (k *keyspace) list(index string, expr filter.Expression, score float64) (*db.SearchResult, error) {
	if _, ok := k.indexes[index]; !ok {
		return nil, db.ErrIndexNotFound
	}
	res := &db.SearchResult{}
	for _, key := range k.covered(index) {
		h := k.hashes[key]
		if !matches(h, expr) {
			continue
		}
		res.Entries = append(res.Entries, db.SearchEntry{Key: key, Score: score, Fields: h})
	}
	res.Total = len(res.Entries)
	return res, nil
}

func matches(h map[string]string, expr filter.Expression) bool {
	for _, c := range expr.Must() {
		if c.IsMatch() && !slices.Contains(c.Values(), h[c.Key()]) {
			return false
		}
	}
	return true
}

func (k *keyspace) covered(index string) []string {
	var keys []string
	for key := range k.hashes {
		for _, p := range k.indexes[index] {
			if strings.HasPrefix(key, p) {
				keys = append(keys, key)
				break
			}
		}
	}
	slices.Sort(keys)
	return keys
}

func tenantChunk(tenant, docID string, idx int) chunk.Embedded {
	e := testChunk(docID, idx)
	e.Chunk.TenantID = tenant
	e.Chunk.Content = tenant + " renewal terms"
	return e
}

func TestTenantNamesDisjoint(t *testing.T) {
	tenants := []string{"acme", "acme_eu", "acme-eu", "Acme", strings.Repeat("t", 60) + "alpha", strings.Repeat("t", 60) + "beta"}
	for i, a := range tenants {
		for _, b := range tenants[i+1:] {
			if domain.CollectionName(a) == domain.CollectionName(b) {
				t.Errorf("%s and %s share index %s", a, b, domain.CollectionName(a))
			}
			pa, pb := domain.ChunkKeyPrefix(a), domain.ChunkKeyPrefix(b)
			if strings.HasPrefix(pa, pb) || strings.HasPrefix(pb, pa) {
				t.Errorf("key prefixes overlap: %s / %s", pa, pb)
			}
		}
	}
}

func TestTenantsIsolated(t *testing.T) {
	ks := newKeyspace()
	repo := New(ks, testDims, HNSWConfig{})
	ctx := context.Background()

	// "acme" is a prefix of "acme_eu": the key prefixes must still not overlap.
	const a, b = "acme", "acme_eu"
	for _, tenant := range []string{a, b} {
		if err := repo.EnsureCollection(ctx, tenant); err != nil {
			t.Fatalf("EnsureCollection(%s): %v", tenant, err)
		}
	}
	if _, err := repo.Upsert(ctx, a, []chunk.Embedded{tenantChunk(a, "d1", 0)}); err != nil {
		t.Fatalf("Upsert a: %v", err)
	}
	if _, err := repo.Upsert(ctx, b, []chunk.Embedded{tenantChunk(b, "d1", 0), tenantChunk(b, "d2", 0)}); err != nil {
		t.Fatalf("Upsert b: %v", err)
	}

	hits, err := repo.Search(ctx, a, []float32{0.1, 0.2, 0.3, 0.4}, 10, filter.Expression{}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Content() != "acme renewal terms" {
		t.Errorf("acme sees %+v", hits)
	}

	if st, _ := repo.Stats(ctx, b); st.Chunks != 2 || st.Documents != 2 {
		t.Errorf("acme_eu stats = %+v", st)
	}

	// Same document id in both tenants.
	if n, err := repo.DeleteByDocument(ctx, a, "d1"); err != nil || n != 1 {
		t.Fatalf("DeleteByDocument = %d, %v", n, err)
	}
	if _, err := repo.DocumentVector(ctx, b, "d1"); err != nil {
		t.Errorf("acme_eu lost d1: %v", err)
	}

	if err := repo.DropCollection(ctx, a); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
	if st, _ := repo.Stats(ctx, b); st.Chunks != 2 {
		t.Errorf("dropping acme changed acme_eu: %+v", st)
	}
	if st, _ := repo.Stats(ctx, a); st.Chunks != 0 {
		t.Errorf("acme after drop = %+v", st)
	}
}
