// Package postgres is the pgvector-backed chunk index: one table per tenant.
package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain"
)

// Config holds connection and index parameters.
type Config struct {
	DSN                string
	Dimensions         int
	HNSWM              int
	HNSWEFConstruction int
}

// Store is a tenant-partitioned chunk index on PostgreSQL + pgvector.
type Store struct {
	pool   *pgxpool.Pool
	cfg    Config
	logger *zap.Logger
}

// New connects and enables the vector extension.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("dsn is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New("dimensions must be positive")
	}
	if cfg.HNSWM <= 0 {
		cfg.HNSWM = 16
	}
	if cfg.HNSWEFConstruction <= 0 {
		cfg.HNSWEFConstruction = 200
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create vector extension: %w", err)
	}

	return &Store{pool: pool, cfg: cfg, logger: logger}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// WaitForReady polls Ping until the database responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for postgres: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const (
	// maxIdentifier is NAMEDATALEN-1. Postgres silently cuts longer names.
	maxIdentifier = 63

	suffixTable        = "_chunks"
	suffixDocIdx       = "_doc_idx"
	suffixEmbeddingIdx = "_embedding_idx"
	longestSuffix      = len(suffixEmbeddingIdx)
)

// relations are the sanitized names of a tenant's table and its indexes.
type relations struct {
	table          string
	docIndex       string
	embeddingIndex string
}

func relationsFor(tenant string) (relations, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return relations{}, err //nolint:wrapcheck // already carries the sentinel
	}
	base := relationBase(tenant)
	return relations{
		table:          pgx.Identifier{base + suffixTable}.Sanitize(),
		docIndex:       pgx.Identifier{base + suffixDocIdx}.Sanitize(),
		embeddingIndex: pgx.Identifier{base + suffixEmbeddingIdx}.Sanitize(),
	}, nil
}

// relationBase is evergreen_{tenant} while every derived name fits in an
// identifier. Longer tenants keep a readable head followed by "#" and a
// digest of the full id; "#" is not allowed in tenant ids, so the two forms
// never meet.
func relationBase(tenant string) string {
	base := domain.CollectionName(tenant)
	if len(base)+longestSuffix <= maxIdentifier {
		return base
	}
	sum := sha256.Sum256([]byte(tenant))
	digest := hex.EncodeToString(sum[:8])
	head := maxIdentifier - longestSuffix - len(domain.NamePrefix) - len("#") - len(digest)
	return domain.NamePrefix + tenant[:head] + "#" + digest
}

// tableName returns the sanitized table identifier of a tenant.
func tableName(tenant string) (string, error) {
	rel, err := relationsFor(tenant)
	return rel.table, err
}
