// Package ingestion runs documents through parse, chunk, extract, embed and store.
package ingestion

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/batch"
	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/ingest"
	"github.com/kailas-cloud/evergreen/internal/metrics"
)

// DefaultMaxConcurrent bounds IngestBatch when the caller passes 0.
const DefaultMaxConcurrent = 10

// Orchestrator drives the per-document ingestion state machine.
type Orchestrator struct {
	parser    Parser
	chunker   Chunker
	extractor Extractor
	embedder  Embedder
	vectors   VectorIndex
	graph     GraphIndex
	statuses  StatusStore

	maxConcurrent int
	logger        *zap.Logger
	now           func() time.Time
}

// New creates an orchestrator. statuses may be nil, then records are not persisted.
func New(
	parser Parser, chunker Chunker, extractor Extractor, embedder Embedder,
	vectors VectorIndex, graph GraphIndex, statuses StatusStore,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		parser: parser, chunker: chunker, extractor: extractor, embedder: embedder,
		vectors: vectors, graph: graph, statuses: statuses,
		maxConcurrent: DefaultMaxConcurrent,
		logger:        logger,
		now:           time.Now,
	}
}

// WithMaxConcurrent sets the batch concurrency used when a call passes 0.
func (o *Orchestrator) WithMaxConcurrent(n int) *Orchestrator {
	if n > 0 {
		o.maxConcurrent = n
	}
	return o
}

// Deletion reports what Delete removed.
type Deletion struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks_deleted"`
	Mentions   int    `json:"mentions_deleted"`
}

// stored is what a successful run wrote.
type stored struct {
	chunkIDs  []string
	entityIDs []string
}

// Ingest runs one document through the pipeline. It never returns an error:
// failures end up in the returned record.
func (o *Orchestrator) Ingest(ctx context.Context, raw document.RawDocument) ingest.IndexedDocument {
	start := o.now()
	raw.EnsureID()
	rec := ingest.NewPending(&raw)

	log := o.logger.With(
		zap.String("tenant", raw.TenantID),
		zap.String("document_id", raw.ID),
		zap.String("source", string(raw.SourceKind)),
	)

	if err := raw.Validate(); err != nil {
		_ = rec.Fail(err)
		log.Warn("Document rejected", zap.Error(err))
		o.observe(&rec, start)
		return rec
	}

	o.persist(ctx, &rec, log)
	_ = rec.Start()
	o.persist(ctx, &rec, log)

	log.Info("Starting ingestion")

	out, err := o.run(ctx, raw, log)
	if err != nil {
		_ = rec.Fail(err)
		log.Error("Ingestion failed", zap.Error(err))
	} else {
		_ = rec.Complete(out.chunkIDs, out.entityIDs, o.now().UTC())
		log.Info("Ingestion complete",
			zap.Int("chunks", len(out.chunkIDs)),
			zap.Int("entities", len(out.entityIDs)),
		)
	}

	o.persist(ctx, &rec, log)
	o.observe(&rec, start)
	return rec
}

// run executes the stages in order. A panic in any stage becomes an error.
func (o *Orchestrator) run(ctx context.Context, raw document.RawDocument, log *zap.Logger) (out stored, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Ingestion panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic during ingestion: %v", r)
		}
	}()

	tenant := raw.TenantID

	parsed := o.parser.Parse(ctx, raw)

	chunks, err := o.chunker.Chunk(parsed)
	if err != nil {
		return stored{}, fmt.Errorf("chunk: %w", err)
	}
	log.Debug("Document chunked", zap.Int("chunks", len(chunks)))

	extracted, err := o.extract(ctx, chunks)
	if err != nil {
		return stored{}, err
	}
	log.Debug("Entities extracted",
		zap.Int("entities", extracted.entityCount()),
		zap.Int("relationships", len(extracted.relationships)),
	)

	embedded, err := o.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return stored{}, fmt.Errorf("embed: %w", err)
	}

	if err := o.vectors.EnsureCollection(ctx, tenant); err != nil {
		return stored{}, fmt.Errorf("ensure collection: %w", err)
	}
	// Chunks of an earlier version of the document are replaced, not merged.
	stale, err := o.vectors.DeleteByDocument(ctx, tenant, raw.ID)
	if err != nil {
		return stored{}, fmt.Errorf("delete previous chunks: %w", err)
	}
	if stale > 0 {
		log.Debug("Previous chunks removed", zap.Int("chunks", stale))
	}
	written, err := o.vectors.Upsert(ctx, tenant, embedded)
	if err != nil {
		return stored{}, fmt.Errorf("upsert chunks: %w", err)
	}
	metrics.ChunksWrittenTotal.Add(float64(written))

	if err := o.graph.EnsureSchema(ctx, tenant); err != nil {
		return stored{}, fmt.Errorf("ensure graph schema: %w", err)
	}
	entityIDs, storedIDs, err := o.writeEntities(ctx, tenant, raw.ID, extracted)
	if err != nil {
		return stored{}, err
	}
	if err := o.writeRelationships(ctx, tenant, extracted.relationships, storedIDs); err != nil {
		return stored{}, err
	}

	chunkIDs := make([]string, len(chunks))
	for i := range chunks {
		chunkIDs[i] = chunks[i].ID
	}
	return stored{chunkIDs: chunkIDs, entityIDs: entityIDs}, nil
}

// chunkEntities is one chunk's extraction output.
type chunkEntities struct {
	entities []entity.Entity
	mentions map[string]entity.Mention // first mention per entity id
}

type extraction struct {
	perChunk      []chunkEntities
	relationships []entity.Relationship
}

func (e *extraction) entityCount() int {
	n := 0
	for i := range e.perChunk {
		n += len(e.perChunk[i].entities)
	}
	return n
}

func (o *Orchestrator) extract(ctx context.Context, chunks []chunk.Chunk) (extraction, error) {
	var out extraction
	for i := range chunks {
		entities, mentions, err := o.extractor.ExtractFromChunk(ctx, chunks[i])
		if err != nil {
			return extraction{}, fmt.Errorf("extract chunk %d: %w", chunks[i].ChunkIndex, err)
		}

		first := make(map[string]entity.Mention, len(entities))
		for _, m := range mentions {
			if _, ok := first[m.EntityID]; !ok {
				first[m.EntityID] = m
			}
		}
		out.perChunk = append(out.perChunk, chunkEntities{entities: entities, mentions: first})

		if len(entities) < 2 {
			continue
		}
		rels, err := o.extractor.ExtractRelationships(ctx, chunks[i].Content, entities)
		if err != nil {
			return extraction{}, fmt.Errorf("extract relationships chunk %d: %w", chunks[i].ChunkIndex, err)
		}
		out.relationships = append(out.relationships, rels...)
	}
	return out, nil
}

// writeEntities merges every extracted entity and links it to the document.
// It returns the distinct stored ids in first-seen order and the mapping
// from extracted to stored ids.
func (o *Orchestrator) writeEntities(
	ctx context.Context, tenant, documentID string, ex extraction,
) ([]string, map[string]string, error) {
	storedIDs := make(map[string]string)
	var ordered []string
	seen := make(map[string]bool)

	for _, ce := range ex.perChunk {
		for _, e := range ce.entities {
			id, err := o.graph.CreateEntity(ctx, tenant, e)
			if err != nil {
				return nil, nil, fmt.Errorf("create entity %q: %w", e.Name, err)
			}
			storedIDs[e.ID] = id

			m, ok := ce.mentions[e.ID]
			text, position := e.Name, 0
			if ok {
				text, position = m.Text, m.Start
			}
			if err := o.graph.LinkEntityToDocument(ctx, tenant, id, documentID, text, position); err != nil {
				return nil, nil, fmt.Errorf("link entity %q: %w", e.Name, err)
			}

			metrics.EntitiesWrittenTotal.Inc()
			if !seen[id] {
				seen[id] = true
				ordered = append(ordered, id)
			}
		}
	}
	return ordered, storedIDs, nil
}

func (o *Orchestrator) writeRelationships(
	ctx context.Context, tenant string, rels []entity.Relationship, storedIDs map[string]string,
) error {
	for _, rel := range rels {
		src, okSrc := storedIDs[rel.SourceEntityID]
		dst, okDst := storedIDs[rel.TargetEntityID]
		if !okSrc || !okDst {
			continue
		}
		if src != rel.SourceEntityID || dst != rel.TargetEntityID {
			rel.SourceEntityID, rel.TargetEntityID = src, dst
			rel.ID = entity.RelationshipID(tenant, src, dst, rel.RelationType)
		}
		rel.TenantID = tenant
		if _, err := o.graph.CreateRelationship(ctx, tenant, rel); err != nil {
			return fmt.Errorf("create relationship %s: %w", rel.RelationType, err)
		}
	}
	return nil
}

// IngestBatch ingests docs with at most maxConcurrent in flight.
// Results keep input order and one failure never stops the others.
func (o *Orchestrator) IngestBatch(ctx context.Context, docs []document.RawDocument, maxConcurrent int) batch.Report {
	results := make([]ingest.IndexedDocument, len(docs))
	if len(docs) == 0 {
		return batch.NewReport(results)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = o.maxConcurrent
	}

	pool, err := ants.NewPool(min(maxConcurrent, len(docs)))
	if err != nil {
		o.logger.Warn("Worker pool unavailable, ingesting sequentially", zap.Error(err))
		for i := range docs {
			results[i] = o.Ingest(ctx, docs[i])
		}
	} else {
		o.fanOut(ctx, pool, docs, results)
		pool.Release()
	}

	report := batch.NewReport(results)
	o.logger.Info("Batch ingestion complete",
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (o *Orchestrator) fanOut(
	ctx context.Context, pool *ants.Pool, docs []document.RawDocument, results []ingest.IndexedDocument,
) {
	var wg sync.WaitGroup
	for i := range docs {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			results[i] = o.Ingest(ctx, docs[i])
		})
		if err != nil {
			wg.Done()
			results[i] = o.rejected(docs[i], err)
		}
	}
	wg.Wait()
}

// rejected builds a failed record for a document that never reached Ingest.
func (o *Orchestrator) rejected(raw document.RawDocument, err error) ingest.IndexedDocument {
	raw.EnsureID()
	rec := ingest.NewPending(&raw)
	_ = rec.Fail(fmt.Errorf("submit: %w", err))
	metrics.DocumentsTotal.WithLabelValues(string(raw.SourceKind), string(rec.Status)).Inc()
	return rec
}

// Status returns the persisted record of a document.
func (o *Orchestrator) Status(ctx context.Context, tenant, documentID string) (ingest.IndexedDocument, error) {
	if o.statuses == nil {
		return ingest.IndexedDocument{}, fmt.Errorf("status store: %w", domain.ErrNotImplemented)
	}
	rec, err := o.statuses.Get(ctx, tenant, documentID)
	if err != nil {
		return ingest.IndexedDocument{}, fmt.Errorf("get status: %w", err)
	}
	return rec, nil
}

// Delete removes a document's chunks, its graph mentions and its status record.
func (o *Orchestrator) Delete(ctx context.Context, tenant, documentID string) (Deletion, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return Deletion{}, err //nolint:wrapcheck // already carries the sentinel
	}
	del := Deletion{DocumentID: documentID}

	chunks, err := o.vectors.DeleteByDocument(ctx, tenant, documentID)
	if err != nil {
		return del, fmt.Errorf("delete chunks: %w", err)
	}
	del.Chunks = chunks

	mentions, err := o.graph.DeleteDocumentEntities(ctx, tenant, documentID)
	if err != nil {
		return del, fmt.Errorf("delete mentions: %w", err)
	}
	del.Mentions = mentions

	if o.statuses != nil {
		if err := o.statuses.Delete(ctx, tenant, documentID); err != nil {
			return del, fmt.Errorf("delete status: %w", err)
		}
	}

	o.logger.Info("Document deleted",
		zap.String("tenant", tenant),
		zap.String("document_id", documentID),
		zap.Int("chunks", chunks),
		zap.Int("mentions", mentions),
	)
	return del, nil
}

// persist saves rec; a failure is logged and never fails the ingest.
func (o *Orchestrator) persist(ctx context.Context, rec *ingest.IndexedDocument, log *zap.Logger) {
	if o.statuses == nil {
		return
	}
	if err := o.statuses.Save(ctx, rec); err != nil {
		log.Warn("Failed to persist ingestion status",
			zap.String("status", string(rec.Status)),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) observe(rec *ingest.IndexedDocument, start time.Time) {
	status := string(rec.Status)
	metrics.DocumentsTotal.WithLabelValues(string(rec.SourceKind), status).Inc()
	metrics.IngestDuration.WithLabelValues(status).Observe(o.now().Sub(start).Seconds())
}
