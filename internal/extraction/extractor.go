// Package extraction finds entities and relationships in chunk text.
//
// Two extractors share one contract: Pipeline runs a Recognizer (the regex
// PatternRecognizer by default) and links entities by co-occurrence, while
// LLMExtractor asks a chat model for both entities and typed relations.
package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
)

// DefaultThreshold drops spans the recognizer is not sure about.
const DefaultThreshold = 0.5

// Extractor turns chunk text into graph material.
type Extractor interface {
	ExtractFromChunk(ctx context.Context, c chunk.Chunk) ([]entity.Entity, []entity.Mention, error)
	ExtractRelationships(ctx context.Context, text string, entities []entity.Entity) ([]entity.Relationship, error)
}

// Span is one recognized entity occurrence. Start and End are byte offsets.
type Span struct {
	Text       string
	Type       entity.Type
	Start      int
	End        int
	Confidence float64
}

// Recognizer finds typed spans in text.
type Recognizer interface {
	Recognize(ctx context.Context, text string, types []entity.Type) ([]Span, error)
}

// Config selects the vocabulary and the confidence cut-off.
type Config struct {
	Types     []entity.Type
	Threshold float64
}

func (c Config) withDefaults() Config {
	if len(c.Types) == 0 {
		c.Types = entity.DefaultTypes()
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	return c
}

// Pipeline is the default Extractor: recognize, filter, deduplicate.
type Pipeline struct {
	recognizer Recognizer
	cfg        Config
	allowed    map[entity.Type]bool
	now        func() time.Time
}

var _ Extractor = (*Pipeline)(nil)

// NewPipeline wraps a recognizer.
func NewPipeline(r Recognizer, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	allowed := make(map[entity.Type]bool, len(cfg.Types))
	for _, t := range cfg.Types {
		allowed[t] = true
	}
	return &Pipeline{recognizer: r, cfg: cfg, allowed: allowed, now: time.Now}
}

// ExtractFromChunk returns the chunk's entities in first-seen order
// and one mention per accepted span.
func (p *Pipeline) ExtractFromChunk(ctx context.Context, c chunk.Chunk) ([]entity.Entity, []entity.Mention, error) {
	if strings.TrimSpace(c.Content) == "" {
		return nil, nil, nil
	}

	spans, err := p.recognizer.Recognize(ctx, c.Content, p.cfg.Types)
	if err != nil {
		return nil, nil, fmt.Errorf("recognize chunk %s: %w", c.ID, err)
	}

	entities, mentions := p.collect(&c, spans)
	return entities, mentions, nil
}

// ExtractRelationships links every pair of distinct entities.
func (p *Pipeline) ExtractRelationships(_ context.Context, _ string, entities []entity.Entity) ([]entity.Relationship, error) {
	return CoOccurrence(entities), nil
}

func (p *Pipeline) collect(c *chunk.Chunk, spans []Span) ([]entity.Entity, []entity.Mention) {
	now := p.now().UTC()
	index := make(map[string]int)
	var entities []entity.Entity
	var mentions []entity.Mention

	for _, s := range spans {
		name := strings.TrimSpace(s.Text)
		if name == "" || s.Confidence < p.cfg.Threshold || !p.allowed[s.Type] {
			continue
		}

		key := entity.NormalizeName(name) + "|" + string(s.Type)
		i, seen := index[key]
		if !seen {
			i = len(entities)
			index[key] = i
			entities = append(entities, entity.Entity{
				ID:         entity.ID(c.TenantID, name, s.Type),
				TenantID:   c.TenantID,
				Type:       s.Type,
				Name:       name,
				Confidence: s.Confidence,
				FirstSeen:  now,
				LastSeen:   now,
			})
		}
		e := &entities[i]
		e.MentionCount++
		if s.Confidence > e.Confidence {
			e.Confidence = s.Confidence
		}

		mentions = append(mentions, entity.Mention{
			EntityID:   e.ID,
			DocumentID: c.DocumentID,
			ChunkID:    c.ID,
			Start:      s.Start,
			End:        s.End,
			Confidence: s.Confidence,
			Text:       s.Text,
		})
	}
	return entities, mentions
}

// CoOccurrence returns one weak edge per unordered pair of distinct entities.
func CoOccurrence(entities []entity.Entity) []entity.Relationship {
	if len(entities) < 2 {
		return nil
	}
	var rels []entity.Relationship
	for i := range entities {
		for j := i + 1; j < len(entities); j++ {
			a, b := &entities[i], &entities[j]
			if a.ID == b.ID {
				continue
			}
			rels = append(rels, entity.Relationship{
				ID:             entity.RelationshipID(a.TenantID, a.ID, b.ID, entity.RelationCoOccurs),
				TenantID:       a.TenantID,
				SourceEntityID: a.ID,
				TargetEntityID: b.ID,
				RelationType:   entity.RelationCoOccurs,
				Confidence:     entity.CoOccurrenceConfidence,
				EvidenceCount:  1,
			})
		}
	}
	return rels
}

// ParseTypes converts configured type names, falling back to the defaults.
func ParseTypes(names []string, business bool) []entity.Type {
	if len(names) == 0 {
		if business {
			return entity.BusinessTypes()
		}
		return entity.DefaultTypes()
	}
	out := make([]entity.Type, 0, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			out = append(out, entity.Type(n))
		}
	}
	return out
}
