package chunk

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/evergreen/internal/domain/search/filter"
)

// Metadata keys echoed from the parent document onto every chunk.
const (
	MetaSource    = "source"
	MetaSourceID  = "source_id"
	MetaTitle     = "title"
	MetaTimestamp = "timestamp"
	MetaThreadID  = "thread_id"
)

// Indexed field names, shared by every vector backend.
const (
	FieldDocumentID = "document_id"
	FieldChunkIndex = "chunk_index"
)

// FilterSchema lists the fields callers may filter chunks on.
var FilterSchema = filter.Schema{
	FieldDocumentID: filter.KindTag,
	MetaSource:      filter.KindTag,
	MetaSourceID:    filter.KindTag,
	MetaThreadID:    filter.KindTag,
	MetaTimestamp:   filter.KindNumeric,
	FieldChunkIndex: filter.KindNumeric,
}

var namespace = uuid.MustParse("0b4a8e7c-58d3-4f61-a2c9-1d7e3f5b9c24")

// Chunk is a contiguous slice of a document's parsed text.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	TenantID   string            `json:"tenant_id"`
	Content    string            `json:"content"`
	ChunkIndex int               `json:"chunk_index"`
	TokenCount int               `json:"token_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ID returns the deterministic id of the index-th chunk of a document.
func ID(documentID string, index int) string {
	return uuid.NewSHA1(namespace, []byte(documentID+"|"+strconv.Itoa(index))).String()
}

// Embedded pairs a chunk with its vector.
type Embedded struct {
	Chunk  Chunk
	Vector []float32
}

// Unix returns the chunk's document timestamp in unix seconds, or 0 if unset.
func (c *Chunk) Unix() int64 {
	ts, err := time.Parse(time.RFC3339, c.Metadata[MetaTimestamp])
	if err != nil {
		return 0
	}
	return ts.Unix()
}
