package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	dbRedis "github.com/kailas-cloud/evergreen/internal/db/redis"
	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
	"github.com/kailas-cloud/evergreen/internal/domain/ingest"
)

// memStore is an in-memory hash store.
type memStore struct {
	hashes map[string]map[string]string
	err    error
}

func newMemStore() *memStore { return &memStore{hashes: map[string]map[string]string{}} }

func (m *memStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if m.err != nil {
		return m.err
	}
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.hashes[key], nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	delete(m.hashes, key)
	return nil
}

func (m *memStore) Scan(_ context.Context, _ string) ([]string, error) {
	keys := make([]string, 0, len(m.hashes))
	for k := range m.hashes {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memStore) DelMulti(_ context.Context, keys []string) (int, error) {
	for _, k := range keys {
		delete(m.hashes, k)
	}
	return len(keys), nil
}

func testRecord() ingest.IndexedDocument {
	raw := document.RawDocument{
		TenantID:   "acme",
		SourceKind: document.Slack,
		SourceID:   "C1/1700000000.0001",
		Title:      "#general",
		Timestamp:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	raw.EnsureID()
	return ingest.NewPending(&raw)
}

func TestSaveGet_Lifecycle(t *testing.T) {
	ms := newMemStore()
	repo := New(ms)
	ctx := context.Background()

	rec := testRecord()
	if err := repo.Save(ctx, &rec); err != nil {
		t.Fatalf("save pending: %v", err)
	}
	got, err := repo.Get(ctx, "acme", rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != ingest.StatusPending || got.SourceKind != document.Slack || !got.Timestamp.Equal(rec.Timestamp) {
		t.Errorf("pending record = %+v", got)
	}
	if got.ChunkIDs == nil || got.EntityIDs == nil {
		t.Error("id lists must decode as empty, not nil")
	}

	_ = rec.Start()
	at := time.Date(2024, 1, 2, 3, 5, 0, 0, time.UTC)
	_ = rec.Complete([]string{"c1", "c2"}, []string{"e1"}, at)
	if err := repo.Save(ctx, &rec); err != nil {
		t.Fatalf("save indexed: %v", err)
	}

	got, err = repo.Get(ctx, "acme", rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != ingest.StatusIndexed || len(got.ChunkIDs) != 2 || got.EntityIDs[0] != "e1" {
		t.Errorf("indexed record = %+v", got)
	}
	if got.IndexedAt == nil || !got.IndexedAt.Equal(at) {
		t.Errorf("indexed_at = %v", got.IndexedAt)
	}

	key := domain.DocumentKey("acme", rec.ID)
	if ms.hashes[key]["updated_at"] == "" {
		t.Error("expected updated_at to be stamped")
	}
}

func TestSave_FailureClearsNothing(t *testing.T) {
	ms := newMemStore()
	repo := New(ms)
	ctx := context.Background()

	rec := testRecord()
	_ = rec.Start()
	_ = rec.Fail(errors.New("embed: rate limited"))
	if err := repo.Save(ctx, &rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _ := repo.Get(ctx, "acme", rec.ID)
	if got.Status != ingest.StatusFailed || got.ErrorMessage != "embed: rate limited" || got.IndexedAt != nil {
		t.Errorf("failed record = %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := New(newMemStore())
	_, err := repo.Get(context.Background(), "acme", "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSave_StoreError(t *testing.T) {
	ms := newMemStore()
	ms.err = errors.New("READONLY")
	repo := New(ms)

	rec := testRecord()
	if err := repo.Save(context.Background(), &rec); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteTenant(t *testing.T) {
	ms := newMemStore()
	repo := New(ms)
	ctx := context.Background()

	a, b := testRecord(), testRecord()
	b.ID = "other"
	_ = repo.Save(ctx, &a)
	_ = repo.Save(ctx, &b)

	n, err := repo.DeleteTenant(ctx, "acme")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 deleted, got %d, %v", n, err)
	}
	if len(ms.hashes) != 0 {
		t.Errorf("records left: %v", ms.hashes)
	}
}

func TestGet_OverRedis(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "evergreen:acme:doc:doc-1")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			"id":         mock.RedisString("doc-1"),
			"tenant_id":  mock.RedisString("acme"),
			"source":     mock.RedisString("google_email"),
			"status":     mock.RedisString("indexed"),
			"chunk_ids":  mock.RedisString(`["c1"]`),
			"entity_ids": mock.RedisString(`[]`),
			"timestamp":  mock.RedisString("2024-01-02T03:04:05Z"),
		})))

	repo := New(dbRedis.NewStoreForTest(c))
	got, err := repo.Get(context.Background(), "acme", "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != ingest.StatusIndexed || got.SourceKind != document.GoogleEmail || len(got.ChunkIDs) != 1 {
		t.Errorf("record = %+v", got)
	}
}
