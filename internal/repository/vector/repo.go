// Package vector stores embedded chunks in a per-tenant RediSearch index.
package vector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/kailas-cloud/evergreen/internal/db"
	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
	"github.com/kailas-cloud/evergreen/internal/domain/search/filter"
	"github.com/kailas-cloud/evergreen/internal/domain/search/result"
)

// Hash fields of a stored chunk.
const (
	fieldVector     = "__vector"
	fieldContent    = "content"
	fieldTitle      = "title"
	fieldTokenCount = "token_count"
	fieldMetadata   = "metadata"
	fieldTenant     = "tenant_id"

	vectorAlias = "vector"
	deletePage  = 1000
)

// store is the consumer interface for chunk storage (ISP).
type store interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string, deleteDocs bool) error
	IndexExists(ctx context.Context, name string) (bool, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGet(ctx context.Context, key, field string) (string, error)
	DelMulti(ctx context.Context, keys []string) (int, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
	CountDistinct(ctx context.Context, index, field string) (int, error)
}

// HNSWConfig holds HNSW index tuning parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements the vector index over Redis hashes.
type Repo struct {
	store store
	dims  int
	hnsw  HNSWConfig

	ensured sync.Map // tenant -> struct{}
}

// New creates a vector repository for vectors of dims dimensions.
func New(s store, dims int, hnsw HNSWConfig) *Repo {
	if hnsw.M <= 0 {
		hnsw.M = 16
	}
	if hnsw.EFConstruct <= 0 {
		hnsw.EFConstruct = 200
	}
	return &Repo{store: s, dims: dims, hnsw: hnsw}
}

// EnsureCollection creates the tenant index unless it already exists.
func (r *Repo) EnsureCollection(ctx context.Context, tenant string) error {
	if err := domain.ValidateTenant(tenant); err != nil {
		return err //nolint:wrapcheck // already carries the sentinel
	}
	if _, ok := r.ensured.Load(tenant); ok {
		return nil
	}

	name := domain.CollectionName(tenant)
	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if !exists {
		def, err := buildIndex(tenant, r.dims, r.hnsw)
		if err != nil {
			return fmt.Errorf("build index %s: %w", name, err)
		}
		if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}

	r.ensured.Store(tenant, struct{}{})
	return nil
}

// Upsert writes chunks as hashes in one round-trip. Existing chunk ids are overwritten.
func (r *Repo) Upsert(ctx context.Context, tenant string, chunks []chunk.Embedded) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := domain.ValidateTenant(tenant); err != nil {
		return 0, err //nolint:wrapcheck // already carries the sentinel
	}

	items := make([]db.HashSetItem, 0, len(chunks))
	for i := range chunks {
		if err := domain.CheckDimensions([][]float32{chunks[i].Vector}, r.dims); err != nil {
			return 0, fmt.Errorf("chunk %s: %w", chunks[i].Chunk.ID, err)
		}
		fields, err := chunkFields(tenant, &chunks[i])
		if err != nil {
			return 0, err
		}
		items = append(items, db.HashSetItem{
			Key:    chunkKey(tenant, chunks[i].Chunk.ID),
			Fields: fields,
		})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return 0, fmt.Errorf("hset chunks: %w", err)
	}
	return len(items), nil
}

// Search returns up to limit chunks nearest to vector, best first.
// Hits scoring below threshold are dropped. A tenant without an index has no hits.
func (r *Repo) Search(
	ctx context.Context, tenant string, vector []float32,
	limit int, expr filter.Expression, threshold float64,
) ([]result.Hit, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return nil, err //nolint:wrapcheck // already carries the sentinel
	}
	if limit <= 0 {
		return nil, nil
	}
	if err := domain.CheckDimensions([][]float32{vector}, r.dims); err != nil {
		return nil, fmt.Errorf("query vector: %w", err)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    domain.CollectionName(tenant),
		Filters:      expr,
		Vector:       vector,
		K:            limit,
		ReturnFields: []string{chunk.FieldDocumentID, fieldContent, fieldMetadata},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("search knn %s: %w", tenant, err)
	}

	prefix := domain.ChunkKeyPrefix(tenant)
	hits := make([]result.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		if e.Score < threshold {
			continue
		}
		hits = append(hits, result.New(
			strings.TrimPrefix(e.Key, prefix),
			e.Fields[chunk.FieldDocumentID],
			e.Score,
			e.Fields[fieldContent],
			decodeMetadata(e.Fields[fieldMetadata]),
		))
	}
	return hits, nil
}

// DeleteByDocument removes every chunk of a document and returns how many were deleted.
func (r *Repo) DeleteByDocument(ctx context.Context, tenant, documentID string) (int, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return 0, err //nolint:wrapcheck // already carries the sentinel
	}
	cond, err := filter.NewMatch(chunk.FieldDocumentID, documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrInvalidDocument, err)
	}
	expr, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)

	var keys []string
	for offset := 0; ; offset += deletePage {
		sr, err := r.store.SearchList(ctx, &db.ListQuery{
			IndexName: domain.CollectionName(tenant),
			Filters:   expr,
			Offset:    offset,
			Limit:     deletePage,
			NoContent: true,
		})
		if err != nil {
			if errors.Is(err, db.ErrIndexNotFound) {
				return 0, nil
			}
			return 0, fmt.Errorf("list chunks of %s: %w", documentID, err)
		}
		for _, e := range sr.Entries {
			keys = append(keys, e.Key)
		}
		if len(sr.Entries) < deletePage {
			break
		}
	}

	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.store.DelMulti(ctx, keys)
	if err != nil {
		return n, fmt.Errorf("delete chunks of %s: %w", documentID, err)
	}
	return n, nil
}

// DocumentVector returns the vector of the document's first chunk.
func (r *Repo) DocumentVector(ctx context.Context, tenant, documentID string) ([]float32, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return nil, err //nolint:wrapcheck // already carries the sentinel
	}
	raw, err := r.store.HGet(ctx, chunkKey(tenant, chunk.ID(documentID, 0)), fieldVector)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("hget vector: %w", err)
	}
	return bytesToVector([]byte(raw))
}

// Stats counts chunks and distinct documents in the tenant index.
func (r *Repo) Stats(ctx context.Context, tenant string) (query.CollectionStats, error) {
	st := query.CollectionStats{Dimensions: r.dims}
	if err := domain.ValidateTenant(tenant); err != nil {
		return st, err //nolint:wrapcheck // already carries the sentinel
	}
	name := domain.CollectionName(tenant)

	chunks, err := r.store.SearchCount(ctx, name, "*")
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return st, nil
		}
		return st, fmt.Errorf("count chunks: %w", err)
	}
	docs, err := r.store.CountDistinct(ctx, name, chunk.FieldDocumentID)
	if err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return st, fmt.Errorf("count documents: %w", err)
	}

	st.Chunks = chunks
	st.Documents = docs
	return st, nil
}

// DropCollection drops the tenant index together with its chunk hashes.
func (r *Repo) DropCollection(ctx context.Context, tenant string) error {
	if err := domain.ValidateTenant(tenant); err != nil {
		return err //nolint:wrapcheck // already carries the sentinel
	}
	r.ensured.Delete(tenant)
	if err := r.store.DropIndex(ctx, domain.CollectionName(tenant), true); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", tenant, err)
	}
	return nil
}

// buildIndex describes the chunk index of a tenant.
func buildIndex(tenant string, dims int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	return db.NewIndex(domain.CollectionName(tenant)).
		Prefix(domain.ChunkKeyPrefix(tenant)).
		Tag(chunk.FieldDocumentID).
		Tag(chunk.MetaSource).
		Tag(chunk.MetaSourceID).
		Tag(chunk.MetaThreadID).
		Numeric(chunk.MetaTimestamp).
		Numeric(chunk.FieldChunkIndex).
		VectorHNSW(fieldVector, dims, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).As(vectorAlias).
		Build()
}

func chunkFields(tenant string, e *chunk.Embedded) (map[string]string, error) {
	c := &e.Chunk
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata of %s: %w", c.ID, err)
	}
	return map[string]string{
		fieldTenant:           tenant,
		chunk.FieldDocumentID: c.DocumentID,
		chunk.FieldChunkIndex: strconv.Itoa(c.ChunkIndex),
		chunk.MetaSource:      c.Metadata[chunk.MetaSource],
		chunk.MetaSourceID:    c.Metadata[chunk.MetaSourceID],
		chunk.MetaThreadID:    c.Metadata[chunk.MetaThreadID],
		chunk.MetaTimestamp:   strconv.FormatInt(c.Unix(), 10),
		fieldTitle:            c.Metadata[chunk.MetaTitle],
		fieldContent:          c.Content,
		fieldTokenCount:       strconv.Itoa(c.TokenCount),
		fieldMetadata:         string(meta),
		fieldVector:           string(vectorToBytes(e.Vector)),
	}, nil
}

func decodeMetadata(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

func chunkKey(tenant, chunkID string) string {
	return domain.ChunkKeyPrefix(tenant) + chunkID
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
