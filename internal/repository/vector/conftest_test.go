package vector

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/evergreen/internal/db"
	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	createIndexFn   func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn     func(ctx context.Context, name string, deleteDocs bool) error
	indexExistsFn   func(ctx context.Context, name string) (bool, error)
	hsetMultiFn     func(ctx context.Context, items []db.HashSetItem) error
	hgetFn          func(ctx context.Context, key, field string) (string, error)
	delMultiFn      func(ctx context.Context, keys []string) (int, error)
	searchKNNFn     func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchListFn    func(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	searchCountFn   func(ctx context.Context, index, query string) (int, error)
	countDistinctFn func(ctx context.Context, index, field string) (int, error)
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string, deleteDocs bool) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name, deleteDocs)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) HGet(ctx context.Context, key, field string) (string, error) {
	if m.hgetFn != nil {
		return m.hgetFn(ctx, key, field)
	}
	return "", db.ErrKeyNotFound
}

func (m *mockStore) DelMulti(ctx context.Context, keys []string) (int, error) {
	if m.delMultiFn != nil {
		return m.delMultiFn(ctx, keys)
	}
	return len(keys), nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	if m.searchListFn != nil {
		return m.searchListFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index, query string) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, index, query)
	}
	return 0, nil
}

func (m *mockStore) CountDistinct(ctx context.Context, index, field string) (int, error) {
	if m.countDistinctFn != nil {
		return m.countDistinctFn(ctx, index, field)
	}
	return 0, nil
}

const testDims = 4

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, testDims, HNSWConfig{}), ms
}

func testChunk(docID string, idx int) chunk.Embedded {
	return chunk.Embedded{
		Chunk: chunk.Chunk{
			ID:         chunk.ID(docID, idx),
			DocumentID: docID,
			TenantID:   "acme",
			Content:    "quarterly numbers are in",
			ChunkIndex: idx,
			TokenCount: 5,
			Metadata: map[string]string{
				chunk.MetaSource:    "slack",
				chunk.MetaSourceID:  "C1/123",
				chunk.MetaThreadID:  "t-1",
				chunk.MetaTitle:     "#finance",
				chunk.MetaTimestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339),
			},
		},
		Vector: []float32{0.1, 0.2, 0.3, 0.4},
	}
}
