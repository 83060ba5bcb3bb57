package ingest

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
)

// Status is the ingestion state of a document.
type Status string

// Ingestion states. pending -> processing -> indexed | failed.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusIndexed    Status = "indexed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool { return s == StatusIndexed || s == StatusFailed }

// IndexedDocument is the outcome record of one ingest call.
type IndexedDocument struct {
	ID           string              `json:"id"`
	TenantID     string              `json:"tenant_id"`
	SourceKind   document.SourceKind `json:"source"`
	SourceID     string              `json:"source_id"`
	Title        string              `json:"title,omitempty"`
	Status       Status              `json:"status"`
	ChunkIDs     []string            `json:"chunk_ids"`
	EntityIDs    []string            `json:"entity_ids"`
	Timestamp    time.Time           `json:"timestamp"`
	IndexedAt    *time.Time          `json:"indexed_at,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// NewPending creates a pending record for a raw document.
func NewPending(d *document.RawDocument) IndexedDocument {
	return IndexedDocument{
		ID:         d.ID,
		TenantID:   d.TenantID,
		SourceKind: d.SourceKind,
		SourceID:   d.SourceID,
		Title:      d.Title,
		Status:     StatusPending,
		ChunkIDs:   []string{},
		EntityIDs:  []string{},
		Timestamp:  d.Timestamp,
	}
}

// Start moves pending to processing.
func (d *IndexedDocument) Start() error {
	if d.Status != StatusPending {
		return fmt.Errorf("start from %s: %w", d.Status, domain.ErrInvalidTransition)
	}
	d.Status = StatusProcessing
	return nil
}

// Complete moves processing to indexed.
func (d *IndexedDocument) Complete(chunkIDs, entityIDs []string, at time.Time) error {
	if d.Status != StatusProcessing {
		return fmt.Errorf("complete from %s: %w", d.Status, domain.ErrInvalidTransition)
	}
	if chunkIDs == nil {
		chunkIDs = []string{}
	}
	if entityIDs == nil {
		entityIDs = []string{}
	}
	d.Status = StatusIndexed
	d.ChunkIDs = chunkIDs
	d.EntityIDs = entityIDs
	d.IndexedAt = &at
	d.ErrorMessage = ""
	return nil
}

// Fail records err and moves any non-terminal record to failed.
func (d *IndexedDocument) Fail(err error) error {
	if d.Status.IsTerminal() {
		return fmt.Errorf("fail from %s: %w", d.Status, domain.ErrInvalidTransition)
	}
	d.Status = StatusFailed
	if err != nil {
		d.ErrorMessage = err.Error()
	}
	return nil
}
