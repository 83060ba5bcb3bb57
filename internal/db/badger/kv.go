// Package badger is an embedded on-disk db.KVStore, used as the embedding cache backend.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/db"
)

// Compile-time check: KV implements db.KVStore.
var _ db.KVStore = (*KV)(nil)

// KV wraps a BadgerDB instance.
type KV struct {
	db *badger.DB
}

// zapAdapter adapts zap to badger.Logger.
type zapAdapter struct {
	logger *zap.SugaredLogger
}

var _ badger.Logger = (*zapAdapter)(nil)

func (a *zapAdapter) Errorf(msg string, items ...any)   { a.logger.Errorf(msg, items...) }
func (a *zapAdapter) Warningf(msg string, items ...any) { a.logger.Warnf(msg, items...) }
func (a *zapAdapter) Infof(msg string, items ...any)    { a.logger.Debugf(msg, items...) }
func (a *zapAdapter) Debugf(msg string, items ...any)   { a.logger.Debugf(msg, items...) }

// Open opens (creating if needed) a database directory. An empty path opens an in-memory store.
func Open(path string, logger *zap.Logger) (*KV, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &zapAdapter{logger: logger.Named("badger").Sugar()}
	opts.Compression = options.None

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &KV{db: bdb}, nil
}

// Get retrieves a value by key.
func (k *KV) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Key: key, Err: err}
	}
	return out, nil
}

// Set stores a value without expiry.
func (k *KV) Set(_ context.Context, key string, value []byte) error {
	err := k.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return &db.Error{Op: db.OpSet, Key: key, Err: err}
	}
	return nil
}

// SetWithTTL stores a value that expires after ttl.
func (k *KV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := k.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), value).WithTTL(ttl))
	})
	if err != nil {
		return &db.Error{Op: db.OpSet, Key: key, Err: err}
	}
	return nil
}

// Close flushes and closes the database.
func (k *KV) Close() error {
	return k.db.Close()
}

// Ping reports whether the database is still open.
func (k *KV) Ping(_ context.Context) error {
	if k.db.IsClosed() {
		return &db.Error{Op: db.OpPing, Err: badger.ErrDBClosed}
	}
	return nil
}
