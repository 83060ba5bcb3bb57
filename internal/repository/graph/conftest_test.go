package graph

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/evergreen/internal/db"
)

type call struct {
	readOnly bool
	graph    string
	query    string
	params   map[string]any
}

// mockStore records queries and answers them through fn.
type mockStore struct {
	calls    []call
	fn       func(c call) (*db.GraphResult, error)
	deleteFn func(ctx context.Context, graph string) error
}

func (m *mockStore) GraphQuery(_ context.Context, graph, query string, params map[string]any) (*db.GraphResult, error) {
	return m.record(call{graph: graph, query: query, params: params})
}

func (m *mockStore) GraphReadQuery(_ context.Context, graph, query string, params map[string]any) (*db.GraphResult, error) {
	return m.record(call{readOnly: true, graph: graph, query: query, params: params})
}

func (m *mockStore) GraphDelete(ctx context.Context, graph string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, graph)
	}
	return nil
}

func (m *mockStore) record(c call) (*db.GraphResult, error) {
	m.calls = append(m.calls, c)
	if m.fn != nil {
		return m.fn(c)
	}
	return &db.GraphResult{}, nil
}

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	r := New(ms)
	r.now = func() time.Time { return fixedNow }
	return r, ms
}

func rows(cols []string, data ...[]any) *db.GraphResult {
	return &db.GraphResult{Columns: cols, Rows: data}
}

var entityCols = []string{"id", "name", "type", "confidence", "mention_count", "first_seen", "last_seen", "aliases"}
