package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
)

const maxParseAttempts = 3

const entityPrompt = `Extract named entities of these types from the text: %s.

Respond with JSON only, in exactly this shape:
{"entities":[{"text":"<exact text as written>","type":"<one of the types>","confidence":<0..1>}]}

If nothing matches, respond with {"entities":[]}.`

const relationPrompt = `These entities were found in the text below:
%s

Identify relationships between them. Use a snake_case relation_type such as
works_for, manages, reports_to, collaborates_with, located_in, owns, part_of, customer_of, vendor_of.

Respond with JSON only, in exactly this shape:
{"relationships":[{"source":"<entity text>","target":"<entity text>","relation_type":"<type>","confidence":<0..1>}]}

If there are none, respond with {"relationships":[]}.`

type llmEntities struct {
	Entities []struct {
		Text       string  `json:"text"`
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	} `json:"entities"`
}

type llmRelations struct {
	Relationships []struct {
		Source       string  `json:"source"`
		Target       string  `json:"target"`
		RelationType string  `json:"relation_type"`
		Confidence   float64 `json:"confidence"`
	} `json:"relationships"`
}

// LLMExtractor asks a chat model for entities and typed relationships.
type LLMExtractor struct {
	*Pipeline
	model  llms.Model
	logger *zap.Logger
}

var _ Extractor = (*LLMExtractor)(nil)

// NewLLMExtractor creates an extractor over any langchaingo chat model.
func NewLLMExtractor(model llms.Model, cfg Config, logger *zap.Logger) *LLMExtractor {
	e := &LLMExtractor{model: model, logger: logger}
	e.Pipeline = NewPipeline(llmRecognizer{e}, cfg)
	return e
}

type llmRecognizer struct{ e *LLMExtractor }

func (r llmRecognizer) Recognize(ctx context.Context, text string, types []entity.Type) ([]Span, error) {
	return r.e.recognize(ctx, text, types)
}

func (e *LLMExtractor) recognize(ctx context.Context, text string, types []entity.Type) ([]Span, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	var out llmEntities
	if err := e.generateJSON(ctx, fmt.Sprintf(entityPrompt, strings.Join(names, ", ")), text, &out); err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)
	cursor := make(map[string]int)
	spans := make([]Span, 0, len(out.Entities))
	for _, ent := range out.Entities {
		name := strings.TrimSpace(ent.Text)
		if name == "" {
			continue
		}
		// locate the mention, continuing after the previous hit of the same text
		key := strings.ToLower(name)
		start, end := -1, -1
		if from := cursor[key]; from <= len(lower) {
			if i := strings.Index(lower[from:], key); i >= 0 {
				start = from + i
				end = start + len(key)
				cursor[key] = end
			}
		}
		if start < 0 {
			start, end = 0, 0
		}
		spans = append(spans, Span{
			Text:       name,
			Type:       entity.Type(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(ent.Type), " ", "_"))),
			Start:      start,
			End:        end,
			Confidence: ent.Confidence,
		})
	}
	return spans, nil
}

// ExtractRelationships asks the model for typed relations and falls back
// to co-occurrence when the call or its parsing fails.
func (e *LLMExtractor) ExtractRelationships(ctx context.Context, text string, entities []entity.Entity) ([]entity.Relationship, error) {
	if len(entities) < 2 {
		return nil, nil
	}

	byName := make(map[string]*entity.Entity, len(entities))
	var list strings.Builder
	for i := range entities {
		byName[entities[i].Key()] = &entities[i]
		fmt.Fprintf(&list, "- %s (%s)\n", entities[i].Name, entities[i].Type)
	}

	var out llmRelations
	if err := e.generateJSON(ctx, fmt.Sprintf(relationPrompt, list.String()), text, &out); err != nil {
		e.logger.Warn("relationship extraction failed, using co-occurrence", zap.Error(err))
		return CoOccurrence(entities), nil
	}

	seen := make(map[string]bool)
	var rels []entity.Relationship
	for _, r := range out.Relationships {
		src := byName[entity.NormalizeName(r.Source)]
		dst := byName[entity.NormalizeName(r.Target)]
		relType := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(r.RelationType), " ", "_"))
		if src == nil || dst == nil || src.ID == dst.ID || relType == "" {
			continue
		}
		id := entity.RelationshipID(src.TenantID, src.ID, dst.ID, relType)
		if seen[id] {
			continue
		}
		seen[id] = true
		rels = append(rels, entity.Relationship{
			ID:             id,
			TenantID:       src.TenantID,
			SourceEntityID: src.ID,
			TargetEntityID: dst.ID,
			RelationType:   relType,
			Confidence:     clamp01(r.Confidence),
			EvidenceCount:  1,
		})
	}
	return rels, nil
}

// generateJSON runs one system+user exchange in JSON mode and decodes the reply into v.
// Malformed replies are retried; transport errors are not.
func (e *LLMExtractor) generateJSON(ctx context.Context, system, user string, v any) error {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	var lastErr error
	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		resp, err := e.model.GenerateContent(ctx, content, llms.WithTemperature(0), llms.WithJSONMode())
		if err != nil {
			return fmt.Errorf("generate: %w: %w", domain.ErrLLMError, err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no choices returned: %w", domain.ErrLLMError)
		}

		raw := stripFences(resp.Choices[0].Content)
		if err := json.Unmarshal([]byte(raw), v); err != nil {
			lastErr = err
			e.logger.Debug("malformed extractor reply", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		return nil
	}
	return fmt.Errorf("parse reply after %d attempts: %w: %w", maxParseAttempts, domain.ErrLLMError, lastErr)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
