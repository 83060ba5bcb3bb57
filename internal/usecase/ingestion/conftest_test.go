package ingestion

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/ingest"
)

type passParser struct{}

func (passParser) Parse(_ context.Context, d document.RawDocument) document.RawDocument { return d }

// paragraphChunker emits one chunk per paragraph.
type paragraphChunker struct{}

func (paragraphChunker) Chunk(d document.RawDocument) ([]chunk.Chunk, error) {
	if strings.TrimSpace(d.Body) == "" {
		return nil, domain.ErrEmptyDocument
	}
	var out []chunk.Chunk
	for i, p := range strings.Split(d.Body, "\n\n") {
		out = append(out, chunk.Chunk{
			ID:         chunk.ID(d.ID, i),
			DocumentID: d.ID,
			TenantID:   d.TenantID,
			Content:    p,
			ChunkIndex: i,
		})
	}
	return out, nil
}

// capitalExtractor treats every capitalized word as a person.
type capitalExtractor struct {
	panicOn string
}

func (x capitalExtractor) ExtractFromChunk(_ context.Context, c chunk.Chunk) ([]entity.Entity, []entity.Mention, error) {
	if x.panicOn != "" && strings.Contains(c.Content, x.panicOn) {
		panic("recognizer blew up")
	}
	var ents []entity.Entity
	var mentions []entity.Mention
	seen := map[string]bool{}
	pos := 0
	for _, w := range strings.Fields(c.Content) {
		start := strings.Index(c.Content[pos:], w) + pos
		pos = start + len(w)
		if w[0] < 'A' || w[0] > 'Z' {
			continue
		}
		id := entity.ID(c.TenantID, w, entity.Person)
		if !seen[id] {
			seen[id] = true
			ents = append(ents, entity.Entity{ID: id, TenantID: c.TenantID, Type: entity.Person, Name: w, Confidence: 0.8})
		}
		mentions = append(mentions, entity.Mention{
			EntityID: id, DocumentID: c.DocumentID, ChunkID: c.ID,
			Start: start, End: pos, Text: w, Confidence: 0.8,
		})
	}
	return ents, mentions, nil
}

func (capitalExtractor) ExtractRelationships(_ context.Context, _ string, ents []entity.Entity) ([]entity.Relationship, error) {
	var out []entity.Relationship
	for i := 0; i < len(ents); i++ {
		for j := i + 1; j < len(ents); j++ {
			out = append(out, entity.Relationship{
				ID:             entity.RelationshipID(ents[i].TenantID, ents[i].ID, ents[j].ID, entity.RelationCoOccurs),
				SourceEntityID: ents[i].ID,
				TargetEntityID: ents[j].ID,
				RelationType:   entity.RelationCoOccurs,
				Confidence:     0.3,
				EvidenceCount:  1,
			})
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	err      error
	inFlight atomic.Int32
	peak     atomic.Int32
	block    chan struct{}
}

func (f *fakeEmbedder) EmbedChunks(_ context.Context, chunks []chunk.Chunk) ([]chunk.Embedded, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]chunk.Embedded, len(chunks))
	for i := range chunks {
		out[i] = chunk.Embedded{Chunk: chunks[i], Vector: []float32{1, 0, 0}}
	}
	return out, nil
}

// fakeVectors keeps the live chunks in upserted; ops records call order.
type fakeVectors struct {
	mu       sync.Mutex
	ensured  []string
	upserted []chunk.Embedded
	deleted  []string
	ops      []string
	err      error
}

func (f *fakeVectors) EnsureCollection(_ context.Context, tenant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, tenant)
	return nil
}

func (f *fakeVectors) Upsert(_ context.Context, _ string, chunks []chunk.Embedded) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.upserted = append(f.upserted, chunks...)
	f.ops = append(f.ops, "upsert")
	return len(chunks), nil
}

func (f *fakeVectors) DeleteByDocument(_ context.Context, _, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, documentID)
	f.ops = append(f.ops, "delete")
	kept := f.upserted[:0]
	for _, c := range f.upserted {
		if c.Chunk.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	n := len(f.upserted) - len(kept)
	f.upserted = kept
	return n, nil
}

type link struct {
	EntityID, DocumentID, Text string
	Position                   int
}

// fakeGraph stores entities under "stored-<name>" ids to check id rewriting.
type fakeGraph struct {
	mu       sync.Mutex
	entities map[string]int // stored id -> merge count
	links    []link
	rels     []entity.Relationship
}

func newFakeGraph() *fakeGraph { return &fakeGraph{entities: map[string]int{}} }

func (f *fakeGraph) EnsureSchema(context.Context, string) error { return nil }

func (f *fakeGraph) CreateEntity(_ context.Context, _ string, e entity.Entity) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "stored-" + entity.NormalizeName(e.Name)
	f.entities[id]++
	return id, nil
}

func (f *fakeGraph) CreateRelationship(_ context.Context, _ string, rel entity.Relationship) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rels = append(f.rels, rel)
	return rel.ID, nil
}

func (f *fakeGraph) LinkEntityToDocument(_ context.Context, _, entityID, documentID, text string, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, link{EntityID: entityID, DocumentID: documentID, Text: text, Position: position})
	return nil
}

func (f *fakeGraph) DeleteDocumentEntities(context.Context, string, string) (int, error) {
	return 2, nil
}

type memStatuses struct {
	mu      sync.Mutex
	history map[string][]ingest.Status
	records map[string]ingest.IndexedDocument
	saveErr error
}

func newMemStatuses() *memStatuses {
	return &memStatuses{history: map[string][]ingest.Status{}, records: map[string]ingest.IndexedDocument{}}
}

func (m *memStatuses) Save(_ context.Context, d *ingest.IndexedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.history[d.ID] = append(m.history[d.ID], d.Status)
	m.records[d.TenantID+"/"+d.ID] = *d
	return nil
}

func (m *memStatuses) Get(_ context.Context, tenant, id string) (ingest.IndexedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[tenant+"/"+id]
	if !ok {
		return ingest.IndexedDocument{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memStatuses) Delete(_ context.Context, tenant, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, tenant+"/"+id)
	return nil
}

type harness struct {
	orch     *Orchestrator
	embedder *fakeEmbedder
	vectors  *fakeVectors
	graph    *fakeGraph
	statuses *memStatuses
}

func newHarness(x capitalExtractor) *harness {
	h := &harness{
		embedder: &fakeEmbedder{},
		vectors:  &fakeVectors{},
		graph:    newFakeGraph(),
		statuses: newMemStatuses(),
	}
	h.orch = New(passParser{}, paragraphChunker{}, x, h.embedder, h.vectors, h.graph, h.statuses, nil)
	return h
}

func rawDoc(sourceID, body string) document.RawDocument {
	return document.RawDocument{
		TenantID:   "acme",
		SourceKind: document.Slack,
		SourceID:   sourceID,
		Body:       body,
	}
}
