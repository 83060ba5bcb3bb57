// Package graph keeps the per-tenant knowledge graph in FalkorDB.
//
// Entities merge on (name_key, type), so repeated extractions of the same
// name converge on one node. Documents are plain nodes linked from entities
// by MENTIONED_IN edges; entity-to-entity facts are RELATES_TO edges keyed by
// relation type.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/evergreen/internal/db"
	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
)

// Subgraph depth bounds.
const (
	MinDepth     = 1
	MaxDepth     = 5
	DefaultDepth = 2
)

// store is the consumer interface for graph operations (ISP).
type store interface {
	GraphQuery(ctx context.Context, graph, query string, params map[string]any) (*db.GraphResult, error)
	GraphReadQuery(ctx context.Context, graph, query string, params map[string]any) (*db.GraphResult, error)
	GraphDelete(ctx context.Context, graph string) error
}

var schemaIndexes = []string{
	"CREATE INDEX FOR (e:Entity) ON (e.id)",
	"CREATE INDEX FOR (e:Entity) ON (e.name_key)",
	"CREATE INDEX FOR (e:Entity) ON (e.type)",
	"CREATE INDEX FOR (d:Document) ON (d.id)",
}

const entityColumns = `e.id AS id, e.name AS name, e.type AS type, e.confidence AS confidence,
	e.mention_count AS mention_count, e.first_seen AS first_seen, e.last_seen AS last_seen,
	e.aliases AS aliases`

const mergeEntityQuery = `MERGE (e:Entity {name_key: $name_key, type: $type})
ON CREATE SET e.id = $id, e.name = $name, e.tenant_id = $tenant, e.aliases = $aliases,
	e.confidence = $confidence, e.mention_count = 1, e.first_seen = $now, e.last_seen = $now
ON MATCH SET e.mention_count = e.mention_count + 1, e.last_seen = $now,
	e.confidence = CASE WHEN e.confidence < $confidence THEN $confidence ELSE e.confidence END
RETURN e.id AS id`

const mergeRelationshipQuery = `MATCH (a:Entity {id: $source}), (b:Entity {id: $target})
MERGE (a)-[r:RELATES_TO {type: $type}]->(b)
ON CREATE SET r.id = $id, r.confidence = $confidence, r.evidence = 1
ON MATCH SET r.evidence = r.evidence + 1,
	r.confidence = CASE WHEN r.confidence < $confidence THEN $confidence ELSE r.confidence END
RETURN r.id AS id`

const linkDocumentQuery = `MATCH (e:Entity {id: $entity_id})
MERGE (d:Document {id: $document_id})
MERGE (e)-[m:MENTIONED_IN]->(d)
ON CREATE SET m.mention_text = $mention_text, m.position = $position, m.count = 1
ON MATCH SET m.count = m.count + 1
RETURN e.id AS id`

// Repo implements the graph index over a Cypher-speaking store.
type Repo struct {
	store store
	now   func() time.Time

	schemas sync.Map // tenant -> struct{}
}

// New creates a graph repository.
func New(s store) *Repo {
	return &Repo{store: s, now: time.Now}
}

// EnsureSchema creates the lookup indexes of the tenant graph.
// Indexes that already exist are fine.
func (r *Repo) EnsureSchema(ctx context.Context, tenant string) error {
	if err := domain.ValidateTenant(tenant); err != nil {
		return err //nolint:wrapcheck // already carries the sentinel
	}
	if _, ok := r.schemas.Load(tenant); ok {
		return nil
	}

	graph := domain.GraphName(tenant)
	for _, q := range schemaIndexes {
		if _, err := r.store.GraphQuery(ctx, graph, q, nil); err != nil && !isAlreadyIndexed(err) {
			return graphErr("create index", err)
		}
	}

	r.schemas.Store(tenant, struct{}{})
	return nil
}

// CreateEntity merges an entity node and returns the id stored in the graph.
// A new node takes e.ID (derived when empty); a match keeps its original id.
func (r *Repo) CreateEntity(ctx context.Context, tenant string, e entity.Entity) (string, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return "", err //nolint:wrapcheck // already carries the sentinel
	}
	if strings.TrimSpace(e.Name) == "" {
		return "", fmt.Errorf("entity name is required: %w", domain.ErrInvalidDocument)
	}
	id := e.ID
	if id == "" {
		id = entity.ID(tenant, e.Name, e.Type)
	}
	aliases := e.Aliases
	if aliases == nil {
		aliases = []string{}
	}

	res, err := r.store.GraphQuery(ctx, domain.GraphName(tenant), mergeEntityQuery, map[string]any{
		"name_key":   entity.NormalizeName(e.Name),
		"type":       string(e.Type),
		"id":         id,
		"name":       e.Name,
		"tenant":     tenant,
		"aliases":    aliases,
		"confidence": e.Confidence,
		"now":        r.now().Unix(),
	})
	if err != nil {
		return "", graphErr("merge entity", err)
	}

	stored, ok := res.Get(0, "id")
	if !ok {
		return "", fmt.Errorf("merge entity %q returned no id: %w", e.Name, domain.ErrGraphError)
	}
	return db.AsString(stored), nil
}

// CreateRelationship merges a typed edge between two stored entities.
// Evidence grows on every merge and confidence keeps its maximum.
func (r *Repo) CreateRelationship(ctx context.Context, tenant string, rel entity.Relationship) (string, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return "", err //nolint:wrapcheck // already carries the sentinel
	}
	id := rel.ID
	if id == "" {
		id = entity.RelationshipID(tenant, rel.SourceEntityID, rel.TargetEntityID, rel.RelationType)
	}

	res, err := r.store.GraphQuery(ctx, domain.GraphName(tenant), mergeRelationshipQuery, map[string]any{
		"source":     rel.SourceEntityID,
		"target":     rel.TargetEntityID,
		"type":       rel.RelationType,
		"id":         id,
		"confidence": rel.Confidence,
	})
	if err != nil {
		return "", graphErr("merge relationship", err)
	}

	stored, ok := res.Get(0, "id")
	if !ok {
		return "", fmt.Errorf("relationship endpoints %s -> %s: %w",
			rel.SourceEntityID, rel.TargetEntityID, domain.ErrNotFound)
	}
	return db.AsString(stored), nil
}

// LinkEntityToDocument records that an entity is mentioned in a document.
func (r *Repo) LinkEntityToDocument(
	ctx context.Context, tenant, entityID, documentID, mentionText string, position int,
) error {
	if err := domain.ValidateTenant(tenant); err != nil {
		return err //nolint:wrapcheck // already carries the sentinel
	}
	res, err := r.store.GraphQuery(ctx, domain.GraphName(tenant), linkDocumentQuery, map[string]any{
		"entity_id":    entityID,
		"document_id":  documentID,
		"mention_text": mentionText,
		"position":     position,
	})
	if err != nil {
		return graphErr("link entity", err)
	}
	if len(res.Rows) == 0 {
		return fmt.Errorf("entity %s: %w", entityID, domain.ErrNotFound)
	}
	return nil
}

// GetEntitySubgraph returns the entity, its RELATES_TO neighborhood up to
// depth hops (clamped to 1..5) and the edges between them.
func (r *Repo) GetEntitySubgraph(ctx context.Context, tenant, entityID string, depth int) (entity.Subgraph, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return entity.Subgraph{}, err //nolint:wrapcheck // already carries the sentinel
	}
	depth = min(MaxDepth, max(MinDepth, depth))
	graph := domain.GraphName(tenant)

	// Variable-length bounds can't be parameters.
	edgesQuery := fmt.Sprintf(`MATCH p = (s:Entity {id: $id})-[:RELATES_TO*1..%d]-()
UNWIND relationships(p) AS r
WITH DISTINCT r
RETURN r.id AS id, startNode(r).id AS source, endNode(r).id AS target,
	r.type AS type, r.confidence AS confidence, r.evidence AS evidence`, depth)

	res, err := r.store.GraphReadQuery(ctx, graph, edgesQuery, map[string]any{"id": entityID})
	if err != nil {
		return entity.Subgraph{}, graphErr("subgraph edges", err)
	}

	ids := []string{entityID}
	seen := map[string]struct{}{entityID: {}}
	edges := make([]entity.Relationship, 0, len(res.Rows))
	for i := range res.Rows {
		rel := relationshipFromRow(res, i, tenant)
		edges = append(edges, rel)
		for _, id := range []string{rel.SourceEntityID, rel.TargetEntityID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	nodesRes, err := r.store.GraphReadQuery(ctx, graph,
		"MATCH (e:Entity) WHERE e.id IN $ids RETURN "+entityColumns,
		map[string]any{"ids": ids},
	)
	if err != nil {
		return entity.Subgraph{}, graphErr("subgraph nodes", err)
	}

	return entity.Subgraph{Nodes: entitiesFromResult(nodesRes, tenant), Edges: edges}, nil
}

// FindEntitiesByName matches entity names case-insensitively by substring,
// most mentioned first. An empty entityType matches every type.
func (r *Repo) FindEntitiesByName(
	ctx context.Context, tenant, pattern string, entityType entity.Type, limit int,
) ([]entity.Entity, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return nil, err //nolint:wrapcheck // already carries the sentinel
	}
	if limit <= 0 {
		limit = 10
	}

	params := map[string]any{"pattern": strings.ToLower(strings.TrimSpace(pattern))}
	where := "toLower(e.name) CONTAINS $pattern"
	if entityType != "" {
		where += " AND e.type = $type"
		params["type"] = string(entityType)
	}
	q := "MATCH (e:Entity) WHERE " + where +
		" RETURN " + entityColumns +
		" ORDER BY e.mention_count DESC LIMIT " + strconv.Itoa(limit)

	res, err := r.store.GraphReadQuery(ctx, domain.GraphName(tenant), q, params)
	if err != nil {
		return nil, graphErr("find entities", err)
	}
	return entitiesFromResult(res, tenant), nil
}

// GetEntityDocuments returns ids of documents that mention the entity.
func (r *Repo) GetEntityDocuments(ctx context.Context, tenant, entityID string, limit int) ([]string, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return nil, err //nolint:wrapcheck // already carries the sentinel
	}
	if limit <= 0 {
		limit = 20
	}

	q := "MATCH (:Entity {id: $id})-[:MENTIONED_IN]->(d:Document) RETURN d.id AS id LIMIT " + strconv.Itoa(limit)
	res, err := r.store.GraphReadQuery(ctx, domain.GraphName(tenant), q, map[string]any{"id": entityID})
	if err != nil {
		return nil, graphErr("entity documents", err)
	}

	ids := make([]string, 0, len(res.Rows))
	for _, v := range res.Column("id") {
		ids = append(ids, db.AsString(v))
	}
	return ids, nil
}

// GetEntitiesByDocument returns entities mentioned in a document, most mentioned first.
func (r *Repo) GetEntitiesByDocument(ctx context.Context, tenant, documentID string, limit int) ([]entity.Entity, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return nil, err //nolint:wrapcheck // already carries the sentinel
	}
	if limit <= 0 {
		limit = 10
	}

	q := "MATCH (e:Entity)-[:MENTIONED_IN]->(:Document {id: $id}) RETURN " + entityColumns +
		" ORDER BY e.mention_count DESC LIMIT " + strconv.Itoa(limit)
	res, err := r.store.GraphReadQuery(ctx, domain.GraphName(tenant), q, map[string]any{"id": documentID})
	if err != nil {
		return nil, graphErr("document entities", err)
	}
	return entitiesFromResult(res, tenant), nil
}

// DeleteDocumentEntities removes the document's mention edges and its node.
// Entities stay, other documents may still mention them.
func (r *Repo) DeleteDocumentEntities(ctx context.Context, tenant, documentID string) (int, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return 0, err //nolint:wrapcheck // already carries the sentinel
	}
	graph := domain.GraphName(tenant)
	params := map[string]any{"id": documentID}

	res, err := r.store.GraphQuery(ctx, graph,
		"MATCH (:Entity)-[m:MENTIONED_IN]->(:Document {id: $id}) DELETE m", params)
	if err != nil {
		return 0, graphErr("delete mentions", err)
	}
	deleted, _ := strconv.Atoi(firstField(res.Stats["Relationships deleted"]))

	if _, err := r.store.GraphQuery(ctx, graph, "MATCH (d:Document {id: $id}) DELETE d", params); err != nil {
		return deleted, graphErr("delete document node", err)
	}
	return deleted, nil
}

// Stats counts entities, relationships and documents of the tenant graph.
func (r *Repo) Stats(ctx context.Context, tenant string) (query.GraphStats, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return query.GraphStats{}, err //nolint:wrapcheck // already carries the sentinel
	}
	graph := domain.GraphName(tenant)

	counts := make([]int, 3)
	for i, q := range []string{
		"MATCH (e:Entity) RETURN count(e) AS n",
		"MATCH (:Entity)-[r:RELATES_TO]->(:Entity) RETURN count(r) AS n",
		"MATCH (d:Document) RETURN count(d) AS n",
	} {
		res, err := r.store.GraphReadQuery(ctx, graph, q, nil)
		if err != nil {
			return query.GraphStats{}, graphErr("graph stats", err)
		}
		if v, ok := res.Get(0, "n"); ok {
			counts[i] = int(db.AsInt64(v))
		}
	}

	return query.GraphStats{Entities: counts[0], Relationships: counts[1], Documents: counts[2]}, nil
}

// DropGraph deletes the tenant graph. A missing graph is not an error.
func (r *Repo) DropGraph(ctx context.Context, tenant string) error {
	if err := domain.ValidateTenant(tenant); err != nil {
		return err //nolint:wrapcheck // already carries the sentinel
	}
	r.schemas.Delete(tenant)
	if err := r.store.GraphDelete(ctx, domain.GraphName(tenant)); err != nil && !errors.Is(err, db.ErrGraphNotFound) {
		return graphErr("drop graph", err)
	}
	return nil
}

func entitiesFromResult(res *db.GraphResult, tenant string) []entity.Entity {
	out := make([]entity.Entity, 0, len(res.Rows))
	for i := range res.Rows {
		get := func(col string) any {
			v, _ := res.Get(i, col)
			return v
		}
		e := entity.Entity{
			ID:           db.AsString(get("id")),
			TenantID:     tenant,
			Name:         db.AsString(get("name")),
			Type:         entity.Type(db.AsString(get("type"))),
			Confidence:   db.AsFloat64(get("confidence")),
			MentionCount: int(db.AsInt64(get("mention_count"))),
			Aliases:      db.AsStrings(get("aliases")),
		}
		if ts := db.AsInt64(get("first_seen")); ts > 0 {
			e.FirstSeen = time.Unix(ts, 0).UTC()
		}
		if ts := db.AsInt64(get("last_seen")); ts > 0 {
			e.LastSeen = time.Unix(ts, 0).UTC()
		}
		out = append(out, e)
	}
	return out
}

func relationshipFromRow(res *db.GraphResult, i int, tenant string) entity.Relationship {
	get := func(col string) any {
		v, _ := res.Get(i, col)
		return v
	}
	return entity.Relationship{
		ID:             db.AsString(get("id")),
		TenantID:       tenant,
		SourceEntityID: db.AsString(get("source")),
		TargetEntityID: db.AsString(get("target")),
		RelationType:   db.AsString(get("type")),
		Confidence:     db.AsFloat64(get("confidence")),
		EvidenceCount:  int(db.AsInt64(get("evidence"))),
	}
}

// firstField takes "3" out of "3" or "3 (0.1 ms)"-style stat values.
func firstField(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

func isAlreadyIndexed(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already indexed")
}

func graphErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, err, domain.ErrGraphError)
}
