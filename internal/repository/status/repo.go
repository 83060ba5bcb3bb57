// Package status persists ingestion records as Redis hashes.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
	"github.com/kailas-cloud/evergreen/internal/domain/ingest"
)

const (
	fieldID        = "id"
	fieldTenant    = "tenant_id"
	fieldSource    = "source"
	fieldSourceID  = "source_id"
	fieldTitle     = "title"
	fieldStatus    = "status"
	fieldChunkIDs  = "chunk_ids"
	fieldEntityIDs = "entity_ids"
	fieldTimestamp = "timestamp"
	fieldIndexedAt = "indexed_at"
	fieldError     = "error_message"
	fieldUpdatedAt = "updated_at"
)

// store is the consumer interface for status records (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	DelMulti(ctx context.Context, keys []string) (int, error)
}

// Repo reads and writes IndexedDocument records.
type Repo struct {
	store store
	now   func() time.Time
}

// New creates a status repository.
func New(s store) *Repo {
	return &Repo{store: s, now: time.Now}
}

// Save writes the full record, overwriting every field.
func (r *Repo) Save(ctx context.Context, d *ingest.IndexedDocument) error {
	if err := domain.ValidateTenant(d.TenantID); err != nil {
		return err //nolint:wrapcheck // already carries the sentinel
	}
	fields, err := toFields(d)
	if err != nil {
		return err
	}
	fields[fieldUpdatedAt] = r.now().UTC().Format(time.RFC3339Nano)

	key := domain.DocumentKey(d.TenantID, d.ID)
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Get returns the record of a document or ErrNotFound.
func (r *Repo) Get(ctx context.Context, tenant, id string) (ingest.IndexedDocument, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return ingest.IndexedDocument{}, err //nolint:wrapcheck // already carries the sentinel
	}
	key := domain.DocumentKey(tenant, id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return ingest.IndexedDocument{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	if len(m) == 0 {
		return ingest.IndexedDocument{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return fromFields(m)
}

// Delete removes the record. A missing record is not an error.
func (r *Repo) Delete(ctx context.Context, tenant, id string) error {
	if err := domain.ValidateTenant(tenant); err != nil {
		return err //nolint:wrapcheck // already carries the sentinel
	}
	key := domain.DocumentKey(tenant, id)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// DeleteTenant removes every record of a tenant and returns how many went.
func (r *Repo) DeleteTenant(ctx context.Context, tenant string) (int, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return 0, err //nolint:wrapcheck // already carries the sentinel
	}
	keys, err := r.store.Scan(ctx, domain.DocumentKey(tenant, "*"))
	if err != nil {
		return 0, fmt.Errorf("scan %s records: %w", tenant, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.store.DelMulti(ctx, keys)
	if err != nil {
		return n, fmt.Errorf("delete %s records: %w", tenant, err)
	}
	return n, nil
}

func toFields(d *ingest.IndexedDocument) (map[string]string, error) {
	chunkIDs, err := json.Marshal(nonNil(d.ChunkIDs))
	if err != nil {
		return nil, fmt.Errorf("marshal chunk ids: %w", err)
	}
	entityIDs, err := json.Marshal(nonNil(d.EntityIDs))
	if err != nil {
		return nil, fmt.Errorf("marshal entity ids: %w", err)
	}

	fields := map[string]string{
		fieldID:        d.ID,
		fieldTenant:    d.TenantID,
		fieldSource:    string(d.SourceKind),
		fieldSourceID:  d.SourceID,
		fieldTitle:     d.Title,
		fieldStatus:    string(d.Status),
		fieldChunkIDs:  string(chunkIDs),
		fieldEntityIDs: string(entityIDs),
		fieldError:     d.ErrorMessage,
		fieldTimestamp: "",
		fieldIndexedAt: "",
	}
	if !d.Timestamp.IsZero() {
		fields[fieldTimestamp] = d.Timestamp.UTC().Format(time.RFC3339)
	}
	if d.IndexedAt != nil {
		fields[fieldIndexedAt] = d.IndexedAt.UTC().Format(time.RFC3339Nano)
	}
	return fields, nil
}

func fromFields(m map[string]string) (ingest.IndexedDocument, error) {
	d := ingest.IndexedDocument{
		ID:           m[fieldID],
		TenantID:     m[fieldTenant],
		SourceKind:   document.SourceKind(m[fieldSource]),
		SourceID:     m[fieldSourceID],
		Title:        m[fieldTitle],
		Status:       ingest.Status(m[fieldStatus]),
		ErrorMessage: m[fieldError],
		ChunkIDs:     []string{},
		EntityIDs:    []string{},
	}
	if raw := m[fieldChunkIDs]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &d.ChunkIDs); err != nil {
			return ingest.IndexedDocument{}, fmt.Errorf("decode chunk ids: %w", err)
		}
	}
	if raw := m[fieldEntityIDs]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &d.EntityIDs); err != nil {
			return ingest.IndexedDocument{}, fmt.Errorf("decode entity ids: %w", err)
		}
	}
	if raw := m[fieldTimestamp]; raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ingest.IndexedDocument{}, fmt.Errorf("decode timestamp: %w", err)
		}
		d.Timestamp = ts
	}
	if raw := m[fieldIndexedAt]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return ingest.IndexedDocument{}, fmt.Errorf("decode indexed_at: %w", err)
		}
		d.IndexedAt = &ts
	}
	return d, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
