// Package entity holds the knowledge-graph vocabulary: entities, mentions and relationships.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type is an entity category such as person or organization.
type Type string

// Default entity types.
const (
	Person       Type = "person"
	Organization Type = "organization"
	Location     Type = "location"
	Product      Type = "product"
	Project      Type = "project"
	Technology   Type = "technology"
	Date         Type = "date"
	Money        Type = "money"
	Email        Type = "email"
	Phone        Type = "phone"
)

// Business entity types.
const (
	Customer   Type = "customer"
	Vendor     Type = "vendor"
	Contract   Type = "contract"
	Meeting    Type = "meeting"
	Deadline   Type = "deadline"
	Department Type = "department"
	Role       Type = "role"
)

// DefaultTypes is the general-purpose vocabulary.
func DefaultTypes() []Type {
	return []Type{Person, Organization, Location, Product, Project, Technology, Date, Money, Email, Phone}
}

// BusinessTypes extends DefaultTypes with business-specific categories.
func BusinessTypes() []Type {
	return append(DefaultTypes(), Customer, Vendor, Contract, Meeting, Deadline, Department, Role)
}

// RelationCoOccurs is the heuristic edge between entities seen in the same chunk.
const RelationCoOccurs = "co_occurs_with"

// CoOccurrenceConfidence is the fixed confidence of a co-occurrence edge.
const CoOccurrenceConfidence = 0.3

var (
	entityNamespace   = uuid.MustParse("9d3e1c57-7a2b-4c8e-b6f0-2e4d5a1c8b73")
	relationNamespace = uuid.MustParse("3a7f9b21-c4d8-4e5a-8f1b-6c0d2e9a7b54")
)

// Entity is a named thing extracted from tenant content.
type Entity struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Type         Type      `json:"type"`
	Name         string    `json:"name"`
	Aliases      []string  `json:"aliases,omitempty"`
	Confidence   float64   `json:"confidence"`
	MentionCount int       `json:"mention_count"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	CanonicalID  string    `json:"canonical_id,omitempty"`
}

// Key returns the identity key of the entity within a tenant.
func (e *Entity) Key() string { return NormalizeName(e.Name) }

// NormalizeName lowercases and collapses whitespace.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ID derives a deterministic entity id from tenant, name and type.
func ID(tenant, name string, t Type) string {
	return uuid.NewSHA1(entityNamespace, []byte(tenant+"|"+NormalizeName(name)+"|"+string(t))).String()
}

// Mention is one occurrence of an entity in a chunk.
type Mention struct {
	EntityID   string  `json:"entity_id"`
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Text       string  `json:"text"`
}

// Relationship is a typed, directed edge between two entities.
type Relationship struct {
	ID             string  `json:"id"`
	TenantID       string  `json:"tenant_id"`
	SourceEntityID string  `json:"source_entity_id"`
	TargetEntityID string  `json:"target_entity_id"`
	RelationType   string  `json:"relation_type"`
	Confidence     float64 `json:"confidence"`
	EvidenceCount  int     `json:"evidence_count"`
}

// IsHeuristic reports whether the edge came from co-occurrence rather than a typed extractor.
func (r *Relationship) IsHeuristic() bool { return r.RelationType == RelationCoOccurs }

// RelationshipID derives a deterministic id for an edge.
func RelationshipID(tenant, sourceID, targetID, relType string) string {
	return uuid.NewSHA1(relationNamespace, []byte(tenant+"|"+sourceID+"|"+targetID+"|"+relType)).String()
}

// Subgraph is the neighborhood of an entity.
type Subgraph struct {
	Nodes []Entity       `json:"nodes"`
	Edges []Relationship `json:"edges"`
}
