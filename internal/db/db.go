// Package db defines the storage contracts the repositories are written
// against. The redis package implements all of them on one connection; the
// postgres and badger packages cover the vector and cache roles only.
package db

import (
	"context"
	"time"
)

// Store is everything the Redis/FalkorDB backend offers.
//
//nolint:interfacebloat // repositories depend on the narrow interfaces below
type Store interface {
	Pinger
	HashStore
	KVStore
	IndexManager
	Searcher
	GraphStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem is one hash written by HSetMulti.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// HashStore holds chunk hashes and document statuses.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []HashSetItem) error
	// HGetAll returns an empty map for a missing key.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGet(ctx context.Context, key, field string) (string, error)
	Del(ctx context.Context, key string) error
	// DelMulti returns how many of keys existed.
	DelMulti(ctx context.Context, keys []string) (int, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// KVStore holds opaque values, cached embeddings mostly.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// IndexManager manages RediSearch indexes.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string, deleteDocs bool) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher queries RediSearch indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchList(ctx context.Context, q *ListQuery) (*SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
	CountDistinct(ctx context.Context, index, field string) (int, error)
}

// GraphStore runs Cypher against one named graph per call.
type GraphStore interface {
	GraphQuery(ctx context.Context, graph, query string, params map[string]any) (*GraphResult, error)
	GraphReadQuery(ctx context.Context, graph, query string, params map[string]any) (*GraphResult, error)
	GraphDelete(ctx context.Context, graph string) error
}
