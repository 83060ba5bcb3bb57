package evergreen

import (
	"github.com/kailas-cloud/evergreen/internal/domain/batch"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/ingest"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
	ingestionuc "github.com/kailas-cloud/evergreen/internal/usecase/ingestion"
)

// Documents.
type (
	Document        = document.RawDocument
	Participant     = document.Participant
	SourceKind      = document.SourceKind
	IndexedDocument = ingest.IndexedDocument
	Status          = ingest.Status
	BatchReport     = batch.Report
	Deletion        = ingestionuc.Deletion
)

// Retrieval.
type (
	QueryResult     = query.Result
	Source          = query.Source
	EntityContext   = query.EntityContext
	SimilarDocument = query.SimilarDocument
	Stats           = query.Stats
	Entity          = entity.Entity
	EntityType      = entity.Type
	Relationship    = entity.Relationship
)

// Source kinds.
const (
	M365Email      = document.M365Email
	M365File       = document.M365File
	M365Teams      = document.M365Teams
	M365Calendar   = document.M365Calendar
	GoogleEmail    = document.GoogleEmail
	GoogleFile     = document.GoogleFile
	GoogleCalendar = document.GoogleCalendar
	Slack          = document.Slack
)

// Ingestion states.
const (
	StatusPending    = ingest.StatusPending
	StatusProcessing = ingest.StatusProcessing
	StatusIndexed    = ingest.StatusIndexed
	StatusFailed     = ingest.StatusFailed
)
