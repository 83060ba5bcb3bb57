// Package document defines the raw, source-agnostic document handed to ingestion.
package document

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/evergreen/internal/domain"
)

// MaxBodySize is the maximum raw body size in bytes.
const MaxBodySize = 4 << 20

// SourceKind identifies the originating system and item type.
type SourceKind string

// Supported source kinds.
const (
	M365Email      SourceKind = "m365_email"
	M365File       SourceKind = "m365_file"
	M365Teams      SourceKind = "m365_teams"
	M365Calendar   SourceKind = "m365_calendar"
	GoogleEmail    SourceKind = "google_email"
	GoogleFile     SourceKind = "google_file"
	GoogleCalendar SourceKind = "google_calendar"
	Slack          SourceKind = "slack"
)

// Family groups source kinds that share parsing and chunking rules.
type Family string

// Source families.
const (
	FamilyEmail    Family = "email"
	FamilyChat     Family = "chat"
	FamilyFile     Family = "file"
	FamilyCalendar Family = "calendar"
	FamilyUnknown  Family = "unknown"
)

var families = map[SourceKind]Family{
	M365Email:      FamilyEmail,
	GoogleEmail:    FamilyEmail,
	M365Teams:      FamilyChat,
	Slack:          FamilyChat,
	M365File:       FamilyFile,
	GoogleFile:     FamilyFile,
	M365Calendar:   FamilyCalendar,
	GoogleCalendar: FamilyCalendar,
}

// Family returns the kind's family, FamilyUnknown for unrecognized kinds.
func (k SourceKind) Family() Family {
	if f, ok := families[k]; ok {
		return f
	}
	return FamilyUnknown
}

// IsValid reports whether k is a known source kind.
func (k SourceKind) IsValid() bool {
	_, ok := families[k]
	return ok
}

// IsEmail reports whether k is an email kind.
func (k SourceKind) IsEmail() bool { return k.Family() == FamilyEmail }

// IsChat reports whether k is a chat kind.
func (k SourceKind) IsChat() bool { return k.Family() == FamilyChat }

// Kinds returns every supported source kind.
func Kinds() []SourceKind {
	return []SourceKind{
		M365Email, M365File, M365Teams, M365Calendar,
		GoogleEmail, GoogleFile, GoogleCalendar, Slack,
	}
}

// Participant is a sender, recipient or attendee.
type Participant struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// RawDocument is a source item as delivered by a connector.
type RawDocument struct {
	ID           string            `json:"id,omitempty"`
	TenantID     string            `json:"tenant_id"`
	SourceKind   SourceKind        `json:"source"`
	SourceID     string            `json:"source_id"`
	Title        string            `json:"title,omitempty"`
	Body         string            `json:"body"`
	Participants []Participant     `json:"participants,omitempty"`
	ThreadID     string            `json:"thread_id,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// namespace seeds deterministic document ids.
var namespace = uuid.MustParse("6f0c1f2a-3c55-4d7e-9a0b-5e2d8c7b1a90")

// Validate checks required fields. Body emptiness is left to the chunker
// because parsing may still strip a body down to nothing.
func (d *RawDocument) Validate() error {
	if err := domain.ValidateTenant(d.TenantID); err != nil {
		return err //nolint:wrapcheck // already carries the sentinel
	}
	if !d.SourceKind.IsValid() {
		return fmt.Errorf("unknown source kind %q: %w", d.SourceKind, domain.ErrInvalidDocument)
	}
	if d.SourceID == "" {
		return fmt.Errorf("source_id is required: %w", domain.ErrInvalidDocument)
	}
	if len(d.Body) > MaxBodySize {
		return fmt.Errorf("body too large (max %d bytes): %w", MaxBodySize, domain.ErrInvalidDocument)
	}
	return nil
}

// EnsureID derives a deterministic id from tenant, kind and source id when none was given,
// so re-ingesting a source item converges on the same document.
func (d *RawDocument) EnsureID() string {
	if d.ID == "" {
		d.ID = DeriveID(d.TenantID, d.SourceKind, d.SourceID)
	}
	return d.ID
}

// DeriveID returns the deterministic id of a source item.
func DeriveID(tenant string, kind SourceKind, sourceID string) string {
	return uuid.NewSHA1(namespace, []byte(tenant+"|"+string(kind)+"|"+sourceID)).String()
}

// WithBody returns a copy of d with a replaced body.
func (d RawDocument) WithBody(body string) RawDocument {
	d.Body = body
	return d
}
