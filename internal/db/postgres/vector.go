package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
	"github.com/kailas-cloud/evergreen/internal/domain/search/filter"
	"github.com/kailas-cloud/evergreen/internal/domain/search/result"
)

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// EnsureCollection creates the tenant table and its HNSW index.
func (s *Store) EnsureCollection(ctx context.Context, tenant string) error {
	rel, err := relationsFor(tenant)
	if err != nil {
		return err
	}
	table := rel.table

	create := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			source      TEXT NOT NULL DEFAULT '',
			source_id   TEXT NOT NULL DEFAULT '',
			thread_id   TEXT NOT NULL DEFAULT '',
			timestamp   BIGINT NOT NULL DEFAULT 0,
			title       TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			metadata    JSONB,
			embedding   vector(%d) NOT NULL
		)`, table, s.cfg.Dimensions)
	if _, err := s.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	stmts := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id)`, rel.docIndex, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)`,
			rel.embeddingIndex, table, s.cfg.HNSWM, s.cfg.HNSWEFConstruction),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Upsert writes chunks in one batch; existing ids are overwritten.
func (s *Store) Upsert(ctx context.Context, tenant string, chunks []chunk.Embedded) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	table, err := tableName(tenant)
	if err != nil {
		return 0, err
	}
	if err := domain.CheckDimensions(vectorsOf(chunks), s.cfg.Dimensions); err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, chunk_index, source, source_id, thread_id, timestamp, title, content, token_count, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			token_count = EXCLUDED.token_count,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, table)

	batch := &pgx.Batch{}
	for i := range chunks {
		c := &chunks[i].Chunk
		batch.Queue(stmt,
			c.ID,
			c.DocumentID,
			c.ChunkIndex,
			c.Metadata[chunk.MetaSource],
			c.Metadata[chunk.MetaSourceID],
			c.Metadata[chunk.MetaThreadID],
			c.Unix(),
			c.Metadata[chunk.MetaTitle],
			c.Content,
			c.TokenCount,
			c.Metadata,
			pgvector.NewVector(chunks[i].Vector),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			return i, fmt.Errorf("upsert chunk %s: %w", chunks[i].Chunk.ID, err)
		}
	}
	return len(chunks), nil
}

// Search returns the nearest chunks with score = 1 - cosine distance.
func (s *Store) Search(
	ctx context.Context, tenant string, vector []float32, limit int, expr filter.Expression, threshold float64,
) ([]result.Hit, error) {
	table, err := tableName(tenant)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	args := []any{pgvector.NewVector(vector)}
	where, args, err := buildWhere(expr, args)
	if err != nil {
		return nil, err
	}
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT id, document_id, content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s%s
		ORDER BY embedding <=> $1
		LIMIT $%d`, table, where, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var hits []result.Hit
	for rows.Next() {
		var (
			id, docID, content string
			meta               map[string]string
			score              float64
		)
		if err := rows.Scan(&id, &docID, &content, &meta, &score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		score = max(0, score)
		if score < threshold {
			continue
		}
		hits = append(hits, result.New(id, docID, score, content, meta))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows: %w", err)
	}
	return hits, nil
}

// DeleteByDocument removes every chunk of a document.
func (s *Store) DeleteByDocument(ctx context.Context, tenant, documentID string) (int, error) {
	table, err := tableName(tenant)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, table), documentID)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("delete document chunks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DocumentVector returns the vector of the document's first chunk.
func (s *Store) DocumentVector(ctx context.Context, tenant, documentID string) ([]float32, error) {
	table, err := tableName(tenant)
	if err != nil {
		return nil, err
	}
	var v pgvector.Vector
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT embedding FROM %s WHERE document_id = $1 ORDER BY chunk_index LIMIT 1`, table),
		documentID,
	).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("document vector: %w", err)
	}
	return v.Slice(), nil
}

// Stats counts chunks and distinct documents.
func (s *Store) Stats(ctx context.Context, tenant string) (query.CollectionStats, error) {
	table, err := tableName(tenant)
	if err != nil {
		return query.CollectionStats{}, err
	}
	st := query.CollectionStats{Dimensions: s.cfg.Dimensions}
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*), count(DISTINCT document_id) FROM %s`, table),
	).Scan(&st.Chunks, &st.Documents)
	if err != nil && !isUndefinedTable(err) {
		return query.CollectionStats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// DropCollection drops the tenant table.
func (s *Store) DropCollection(ctx context.Context, tenant string) error {
	table, err := tableName(tenant)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	s.logger.Info("dropped pgvector collection", zap.String("tenant", tenant))
	return nil
}

func vectorsOf(chunks []chunk.Embedded) [][]float32 {
	out := make([][]float32, len(chunks))
	for i := range chunks {
		out[i] = chunks[i].Vector
	}
	return out
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}
