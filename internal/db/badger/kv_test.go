package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/db"
)

func openMemory(t *testing.T) *KV {
	t.Helper()
	kv, err := Open("", zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestKV_SetGet(t *testing.T) {
	kv := openMemory(t)
	ctx := context.Background()

	if err := kv.Set(ctx, "evergreen:emb_cache:abc", []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := kv.Get(ctx, "evergreen:emb_cache:abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 4 || got[3] != 4 {
		t.Errorf("got %v", got)
	}
}

func TestKV_MissingKey(t *testing.T) {
	kv := openMemory(t)
	_, err := kv.Get(context.Background(), "nope")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestKV_SetWithTTL(t *testing.T) {
	kv := openMemory(t)
	ctx := context.Background()

	if err := kv.SetWithTTL(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("got %q", got)
	}
}

func TestKV_OnDisk(t *testing.T) {
	dir := t.TempDir()
	kv, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := kv.Set(context.Background(), "k", []byte("persisted")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("got %q", got)
	}
}

func TestKV_Ping(t *testing.T) {
	kv, err := Open("", zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := kv.Ping(context.Background()); err != nil {
		t.Fatalf("ping open db: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	err = kv.Ping(context.Background())
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpPing {
		t.Errorf("ping closed db = %v, want db.Error with op PING", err)
	}
}
