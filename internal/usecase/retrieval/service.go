// Package retrieval answers questions from the vector index, the entity graph
// and an optional language model.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
	"github.com/kailas-cloud/evergreen/internal/domain/search/filter"
	"github.com/kailas-cloud/evergreen/internal/domain/search/result"
	"github.com/kailas-cloud/evergreen/internal/metrics"
)

// Canned answers.
const (
	NoInformationAnswer  = "I couldn't find relevant information to answer your question."
	SynthesisErrorAnswer = "I found relevant information but had trouble summarizing it. Please try again."
)

// Confidence levels outside the source-count formula.
const (
	SynthesisErrorConfidence = 0.2
	InsufficientConfidence   = 0.3
	maxConfidence            = 0.9
)

// Defaults.
const (
	DefaultOversampleFactor    = 2
	DefaultGraphDocuments      = 5
	DefaultEntitiesPerDocument = 10
	DefaultMaxTokens           = 1024
	DefaultEntityDepth         = 2
	DefaultEntityDocuments     = 20
	DefaultSimilarTopK         = 5
	promptEntityLimit          = 10
)

var insufficientPhrases = []string{
	"don't have enough",
	"do not have enough",
	"cannot find",
	"not enough information",
}

const systemPrompt = `You are an assistant answering questions about an organization's emails, chats, files and calendars.
Answer only from the numbered sources you are given.
Cite every claim with the number of its source, like [1] or [2].
If the sources do not contain enough information, say so.
Be concise but complete.`

// Config tunes the retrieval pipeline.
type Config struct {
	OversampleFactor    int
	ScoreThreshold      float64
	GraphDocuments      int
	EntitiesPerDocument int
	MaxTokens           int
	Temperature         float64
	EntityDepth         int
	EntityDocuments     int
	Dimensions          int
}

func (c *Config) applyDefaults() {
	if c.OversampleFactor <= 0 {
		c.OversampleFactor = DefaultOversampleFactor
	}
	if c.GraphDocuments <= 0 {
		c.GraphDocuments = DefaultGraphDocuments
	}
	if c.EntitiesPerDocument <= 0 {
		c.EntitiesPerDocument = DefaultEntitiesPerDocument
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.EntityDepth <= 0 {
		c.EntityDepth = DefaultEntityDepth
	}
	if c.EntityDocuments <= 0 {
		c.EntityDocuments = DefaultEntityDocuments
	}
}

// Engine runs the hybrid retrieval pipeline.
type Engine struct {
	embedder  QueryEmbedder
	vectors   VectorIndex
	graph     GraphIndex
	reranker  Reranker
	generator Generator
	cfg       Config
	logger    *zap.Logger
}

// New creates an engine without reranking or synthesis.
func New(embedder QueryEmbedder, vectors VectorIndex, graph GraphIndex, cfg Config, logger *zap.Logger) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{embedder: embedder, vectors: vectors, graph: graph, cfg: cfg, logger: logger}
}

// WithReranker enables reranking. A nil reranker disables it.
func (e *Engine) WithReranker(r Reranker) *Engine {
	e.reranker = r
	return e
}

// WithGenerator enables answer synthesis. A nil generator disables it.
func (e *Engine) WithGenerator(g Generator) *Engine {
	e.generator = g
	return e
}

// Query answers req against one tenant.
// Only embedding and search errors are returned; rerank, graph and synthesis degrade.
func (e *Engine) Query(ctx context.Context, tenant string, req query.Request) (query.Result, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return query.Result{}, err //nolint:wrapcheck // already carries the sentinel
	}
	if err := req.Validate(); err != nil {
		return query.Result{}, err //nolint:wrapcheck // already carries the sentinel
	}
	expr, err := filter.FromMap(req.Filters, chunk.FilterSchema)
	if err != nil {
		return query.Result{}, fmt.Errorf("filters: %w", err)
	}

	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(strconv.FormatBool(req.Synthesize)).Observe(time.Since(start).Seconds())
	}()

	log := e.logger.With(zap.String("tenant", tenant))
	log.Info("Processing query", zap.String("query", truncate(req.Query, 100)))

	vector, err := e.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return query.Result{}, fmt.Errorf("embed query: %w", err)
	}

	hits, err := e.vectors.Search(ctx, tenant, vector, req.TopK*e.cfg.OversampleFactor, expr, e.cfg.ScoreThreshold)
	if err != nil {
		return query.Result{}, fmt.Errorf("vector search: %w", err)
	}
	log.Debug("Vector search complete", zap.Int("hits", len(hits)))

	res := query.Result{
		Sources:  e.rank(ctx, req.Query, toSources(hits), req.TopK, log),
		Entities: []entity.Entity{},
	}

	if len(res.Sources) == 0 {
		res.Answer = NoInformationAnswer
		return res, nil
	}

	if req.IncludeGraph {
		res.Entities = e.relatedEntities(ctx, tenant, res.Sources, log)
	}

	if req.Synthesize && e.generator != nil {
		e.synthesize(ctx, req.Query, &res, log)
	} else {
		res.Confidence = sourceConfidence(len(res.Sources))
		if req.Synthesize {
			res.Reasoning = "answer synthesis is not configured"
		}
	}
	return res, nil
}

func toSources(hits []result.Hit) []query.Source {
	out := make([]query.Source, len(hits))
	for i := range hits {
		h := &hits[i]
		out[i] = query.Source{
			ChunkID:    h.ID(),
			DocumentID: h.DocumentID(),
			Content:    h.Content(),
			Score:      h.Score(),
			Metadata:   h.Metadata(),
		}
	}
	return out
}

// rank reranks sources when a reranker is set and always returns at most topK.
func (e *Engine) rank(ctx context.Context, q string, sources []query.Source, topK int, log *zap.Logger) []query.Source {
	if e.reranker == nil || len(sources) == 0 {
		return head(sources, topK)
	}

	docs := make([]string, len(sources))
	for i := range sources {
		docs[i] = sources[i].Content
	}
	ranked, err := e.reranker.Rerank(ctx, q, docs, topK)
	if err != nil {
		log.Warn("Reranking failed, using original order", zap.Error(err))
		metrics.DegradedStepsTotal.WithLabelValues("rerank").Inc()
		return head(sources, topK)
	}

	out := make([]query.Source, 0, min(len(ranked), topK))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(sources) || len(out) == topK {
			continue
		}
		s := sources[r.Index]
		score := r.Score
		s.RerankScore = &score
		out = append(out, s)
	}
	log.Debug("Reranking complete", zap.Int("kept", len(out)))
	return out
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// relatedEntities collects entities mentioned in the first GraphDocuments
// distinct source documents, deduplicated in first-seen order.
func (e *Engine) relatedEntities(ctx context.Context, tenant string, sources []query.Source, log *zap.Logger) []entity.Entity {
	var docIDs []string
	seenDoc := make(map[string]bool)
	for i := range sources {
		id := sources[i].DocumentID
		if id == "" || seenDoc[id] {
			continue
		}
		seenDoc[id] = true
		docIDs = append(docIDs, id)
		if len(docIDs) == e.cfg.GraphDocuments {
			break
		}
	}

	perDoc := make([][]entity.Entity, len(docIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.GraphDocuments)
	for i, id := range docIDs {
		g.Go(func() error {
			ents, err := e.graph.GetEntitiesByDocument(gctx, tenant, id, e.cfg.EntitiesPerDocument)
			if err != nil {
				return fmt.Errorf("entities of %s: %w", id, err)
			}
			perDoc[i] = ents
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn("Graph augmentation failed", zap.Error(err))
		metrics.DegradedStepsTotal.WithLabelValues("graph").Inc()
		return []entity.Entity{}
	}

	out := []entity.Entity{}
	seen := make(map[string]bool)
	for _, ents := range perDoc {
		for _, ent := range ents {
			if seen[ent.ID] {
				continue
			}
			seen[ent.ID] = true
			out = append(out, ent)
		}
	}
	log.Debug("Graph augmentation complete", zap.Int("entities", len(out)))
	return out
}

func (e *Engine) synthesize(ctx context.Context, q string, res *query.Result, log *zap.Logger) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, buildPrompt(q, res.Sources, res.Entities)),
	}
	opts := []llms.CallOption{llms.WithMaxTokens(e.cfg.MaxTokens)}
	if e.cfg.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(e.cfg.Temperature))
	}

	answer, err := e.generate(ctx, messages, opts)
	if err != nil {
		log.Error("Answer synthesis failed", zap.Error(err))
		metrics.DegradedStepsTotal.WithLabelValues("synthesis").Inc()
		res.Answer = SynthesisErrorAnswer
		res.Confidence = SynthesisErrorConfidence
		res.Reasoning = err.Error()
		return
	}

	res.Answer = answer
	res.Confidence = sourceConfidence(len(res.Sources))
	if admitsInsufficient(answer) {
		res.Confidence = InsufficientConfidence
	}
}

func (e *Engine) generate(ctx context.Context, messages []llms.MessageContent, opts []llms.CallOption) (string, error) {
	resp, err := e.generator.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w: %w", domain.ErrLLMError, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate: empty response: %w", domain.ErrLLMError)
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// buildPrompt numbers sources from 1 so the model can cite them.
func buildPrompt(q string, sources []query.Source, entities []entity.Entity) string {
	var sb strings.Builder
	sb.WriteString("Sources:\n\n")
	for i := range sources {
		s := &sources[i]
		fmt.Fprintf(&sb, "[%d] (%s, %s, %s)\n%s\n\n",
			i+1,
			metaOr(s.Metadata, chunk.MetaSource, "unknown source"),
			metaOr(s.Metadata, chunk.MetaTitle, "untitled"),
			metaOr(s.Metadata, chunk.MetaTimestamp, "unknown date"),
			s.Content,
		)
	}

	if len(entities) > 0 {
		names := make([]string, 0, min(len(entities), promptEntityLimit))
		for _, ent := range head(entities, promptEntityLimit) {
			names = append(names, fmt.Sprintf("%s (%s)", ent.Name, ent.Type))
		}
		sb.WriteString("Related entities: " + strings.Join(names, ", ") + "\n\n")
	}

	sb.WriteString("Question: " + q)
	return sb.String()
}

func metaOr(m map[string]string, key, fallback string) string {
	if v := m[key]; v != "" {
		return v
	}
	return fallback
}

func sourceConfidence(n int) float64 {
	if n == 0 {
		return 0
	}
	return min(maxConfidence, 0.5+0.1*float64(n))
}

func admitsInsufficient(answer string) bool {
	lower := strings.ToLower(answer)
	for _, p := range insufficientPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// EntityContext returns the best name match for an entity with its
// neighborhood and the documents that mention it.
func (e *Engine) EntityContext(ctx context.Context, tenant, name string, t entity.Type) (query.EntityContext, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return query.EntityContext{}, err //nolint:wrapcheck // already carries the sentinel
	}
	if strings.TrimSpace(name) == "" {
		return query.EntityContext{}, fmt.Errorf("entity name is required: %w", domain.ErrInvalidQuery)
	}

	matches, err := e.graph.FindEntitiesByName(ctx, tenant, name, t, 1)
	if err != nil {
		return query.EntityContext{}, fmt.Errorf("find entity: %w", err)
	}
	if len(matches) == 0 {
		return query.EntityContext{Found: false}, nil
	}
	found := matches[0]

	sub, err := e.graph.GetEntitySubgraph(ctx, tenant, found.ID, e.cfg.EntityDepth)
	if err != nil {
		return query.EntityContext{}, fmt.Errorf("entity subgraph: %w", err)
	}
	docs, err := e.graph.GetEntityDocuments(ctx, tenant, found.ID, e.cfg.EntityDocuments)
	if err != nil {
		return query.EntityContext{}, fmt.Errorf("entity documents: %w", err)
	}

	related := make([]entity.Entity, 0, len(sub.Nodes))
	for _, n := range sub.Nodes {
		if n.ID != found.ID {
			related = append(related, n)
		}
	}
	return query.EntityContext{
		Found:         true,
		Entity:        &found,
		RelatedNodes:  related,
		Relationships: sub.Edges,
		DocumentIDs:   docs,
	}, nil
}

// SearchEntities lists entities whose name contains pattern.
func (e *Engine) SearchEntities(
	ctx context.Context, tenant, pattern string, t entity.Type, limit int,
) ([]entity.Entity, error) {
	ents, err := e.graph.FindEntitiesByName(ctx, tenant, pattern, t, limit)
	if err != nil {
		return nil, fmt.Errorf("search entities: %w", err)
	}
	return ents, nil
}

// FindSimilar returns up to topK other documents closest to the first chunk
// of documentID, one entry per document.
func (e *Engine) FindSimilar(ctx context.Context, tenant, documentID string, topK int) ([]query.SimilarDocument, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return nil, err //nolint:wrapcheck // already carries the sentinel
	}
	if topK <= 0 {
		topK = DefaultSimilarTopK
	}
	if topK > query.MaxTopK {
		return nil, fmt.Errorf("top_k must be between 1 and %d: %w", query.MaxTopK, domain.ErrInvalidQuery)
	}

	vector, err := e.vectors.DocumentVector(ctx, tenant, documentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []query.SimilarDocument{}, nil
		}
		return nil, fmt.Errorf("document vector: %w", err)
	}

	self, err := filter.NewMatch(chunk.FieldDocumentID, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	expr := filter.Expression{}.Exclude(self)

	// a document contributes several chunks; oversample before deduplicating
	hits, err := e.vectors.Search(ctx, tenant, vector, topK*e.cfg.OversampleFactor*2, expr, e.cfg.ScoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]query.SimilarDocument, 0, topK)
	seen := make(map[string]bool)
	for i := range hits {
		h := &hits[i]
		if seen[h.DocumentID()] || h.DocumentID() == documentID {
			continue
		}
		seen[h.DocumentID()] = true
		out = append(out, query.SimilarDocument{
			DocumentID: h.DocumentID(),
			ChunkID:    h.ID(),
			Score:      h.Score(),
			Content:    h.Content(),
			Metadata:   h.Metadata(),
		})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// Stats merges vector and graph counters for a tenant.
func (e *Engine) Stats(ctx context.Context, tenant string) (query.Stats, error) {
	if err := domain.ValidateTenant(tenant); err != nil {
		return query.Stats{}, err //nolint:wrapcheck // already carries the sentinel
	}
	vs, err := e.vectors.Stats(ctx, tenant)
	if err != nil {
		return query.Stats{}, fmt.Errorf("vector stats: %w", err)
	}
	gs, err := e.graph.Stats(ctx, tenant)
	if err != nil {
		return query.Stats{}, fmt.Errorf("graph stats: %w", err)
	}

	dims := vs.Dimensions
	if dims == 0 {
		dims = e.cfg.Dimensions
	}
	return query.Stats{
		Tenant:        tenant,
		Chunks:        vs.Chunks,
		Entities:      gs.Entities,
		Relationships: gs.Relationships,
		Documents:     max(vs.Documents, gs.Documents),
		Dimensions:    dims,
	}, nil
}

// DropTenant removes the tenant's collection and graph.
func (e *Engine) DropTenant(ctx context.Context, tenant string) error {
	if err := domain.ValidateTenant(tenant); err != nil {
		return err //nolint:wrapcheck // already carries the sentinel
	}
	if err := e.vectors.DropCollection(ctx, tenant); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	if err := e.graph.DropGraph(ctx, tenant); err != nil {
		return fmt.Errorf("drop graph: %w", err)
	}
	e.logger.Info("Tenant dropped", zap.String("tenant", tenant))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
