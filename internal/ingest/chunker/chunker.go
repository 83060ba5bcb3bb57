// Package chunker splits parsed documents into token-budgeted chunks.
package chunker

import (
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
)

// Config sizes the chunks of one source kind, in tokens.
type Config struct {
	MaxTokens     int
	OverlapTokens int
	MinChunkSize  int
}

// FallbackKey names the profile used for unknown kinds.
const FallbackKey = "fallback"

var (
	fallbackConfig = Config{MaxTokens: 512, OverlapTokens: 50, MinChunkSize: 100}

	defaultConfigs = map[document.Family]Config{
		document.FamilyEmail:    {MaxTokens: 512, OverlapTokens: 50, MinChunkSize: 100},
		document.FamilyCalendar: {MaxTokens: 512, OverlapTokens: 50, MinChunkSize: 100},
		document.FamilyChat:     {MaxTokens: 256, OverlapTokens: 0, MinChunkSize: 100},
		document.FamilyFile:     {MaxTokens: 1024, OverlapTokens: 100, MinChunkSize: 100},
	}
)

// Chunker routes documents to a kind-specific splitting strategy.
type Chunker struct {
	tok      Tokenizer
	kinds    map[document.SourceKind]Config
	families map[document.Family]Config
	fallback Config
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithTokenizer replaces the default character estimator.
func WithTokenizer(t Tokenizer) Option {
	return func(c *Chunker) { c.tok = t }
}

// WithProfile overrides sizing for a source kind ("slack"), a family ("chat")
// or the fallback. A kind override wins over its family.
func WithProfile(key string, cfg Config) Option {
	return func(c *Chunker) {
		switch {
		case key == FallbackKey:
			c.fallback = cfg
		case document.SourceKind(key).IsValid():
			c.kinds[document.SourceKind(key)] = cfg
		default:
			c.families[document.Family(key)] = cfg
		}
	}
}

// New creates a Chunker with the default size table and a 4 chars/token estimator.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		tok:      Estimator{CharsPerToken: 4},
		kinds:    make(map[document.SourceKind]Config),
		families: make(map[document.Family]Config, len(defaultConfigs)),
		fallback: fallbackConfig,
	}
	for f, cfg := range defaultConfigs {
		c.families[f] = cfg
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfigFor returns the effective sizing of a kind.
func (c *Chunker) ConfigFor(kind document.SourceKind) Config {
	if cfg, ok := c.kinds[kind]; ok {
		return cfg
	}
	if cfg, ok := c.families[kind.Family()]; ok {
		return cfg
	}
	return c.fallback
}

// Chunk splits the body of d. It fails with domain.ErrEmptyDocument
// when nothing but whitespace is left.
func (c *Chunker) Chunk(d document.RawDocument) ([]chunk.Chunk, error) {
	text := strings.TrimSpace(d.Body)
	if text == "" {
		return nil, fmt.Errorf("document %s: %w", d.ID, domain.ErrEmptyDocument)
	}
	cfg := c.ConfigFor(d.SourceKind)

	var pieces []string
	switch d.SourceKind.Family() {
	case document.FamilyEmail:
		pieces = c.chunkEmail(text, cfg)
	case document.FamilyChat:
		pieces = c.chunkChat(text, cfg)
	default:
		pieces = c.chunkGeneric(text, cfg)
	}

	docID := d.EnsureID()
	meta := chunkMetadata(&d)
	chunks := make([]chunk.Chunk, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		idx := len(chunks)
		chunks = append(chunks, chunk.Chunk{
			ID:         chunk.ID(docID, idx),
			DocumentID: docID,
			TenantID:   d.TenantID,
			Content:    p,
			ChunkIndex: idx,
			TokenCount: c.tok.Count(p),
			Metadata:   copyMeta(meta),
		})
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s: %w", d.ID, domain.ErrEmptyDocument)
	}
	return chunks, nil
}

func (c *Chunker) fits(text string, cfg Config) bool {
	return c.tok.Count(text) <= cfg.MaxTokens
}

func (c *Chunker) chunkEmail(text string, cfg Config) []string {
	if c.fits(text, cfg) {
		return []string{text}
	}
	packed := c.pack(strings.Split(text, "\n\n"), "\n\n", cfg)
	return c.mergeSmall(packed, "\n\n", cfg)
}

func (c *Chunker) chunkChat(text string, cfg Config) []string {
	if c.fits(text, cfg) {
		return []string{text}
	}
	packed := c.pack(splitSentences(text), " ", cfg)
	return c.mergeSmall(packed, " ", cfg)
}

func (c *Chunker) chunkGeneric(text string, cfg Config) []string {
	if c.fits(text, cfg) {
		return []string{text}
	}

	sections := splitHeaders(text)
	if len(sections) <= 1 {
		return c.chunkEmail(text, cfg)
	}

	var out []string
	for _, s := range sections {
		if c.fits(s, cfg) {
			out = append(out, s)
			continue
		}
		out = append(out, c.wordWindows(s, cfg)...)
	}
	return c.mergeSmall(out, "\n\n", cfg)
}

// pack greedily joins parts with sep while the result fits MaxTokens.
// A part that alone exceeds the budget goes through the word window.
func (c *Chunker) pack(parts []string, sep string, cfg Config) []string {
	var out []string
	cur := ""
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		candidate := part
		if cur != "" {
			candidate = cur + sep + part
		}
		if c.fits(candidate, cfg) {
			cur = candidate
			continue
		}

		if cur != "" {
			out = append(out, cur)
			cur = ""
		}
		if c.fits(part, cfg) {
			cur = part
		} else {
			out = append(out, c.wordWindows(part, cfg)...)
		}
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// wordWindows splits text into overlapping windows of whole words.
// Each window holds at least one word, and the overlap is always shorter
// than the window it came from.
func (c *Chunker) wordWindows(text string, cfg Config) []string {
	words := strings.Fields(text)
	var out []string

	for start := 0; start < len(words); {
		end := start + 1
		window := words[start]
		for end < len(words) {
			candidate := window + " " + words[end]
			if !c.fits(candidate, cfg) {
				break
			}
			window = candidate
			end++
		}
		out = append(out, window)
		if end == len(words) {
			break
		}

		back := 0
		if cfg.OverlapTokens > 0 {
			for back < end-start-1 {
				tail := strings.Join(words[end-back-1:end], " ")
				if c.tok.Count(tail) > cfg.OverlapTokens {
					break
				}
				back++
			}
		}
		start = end - back
	}
	return out
}

// mergeSmall folds a chunk below MinChunkSize into its predecessor
// when the combination still fits.
func (c *Chunker) mergeSmall(pieces []string, sep string, cfg Config) []string {
	if len(pieces) < 2 || cfg.MinChunkSize <= 0 {
		return pieces
	}
	out := []string{pieces[0]}
	for _, p := range pieces[1:] {
		last := len(out) - 1
		if c.tok.Count(p) < cfg.MinChunkSize {
			merged := out[last] + sep + p
			if c.fits(merged, cfg) {
				out[last] = merged
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func chunkMetadata(d *document.RawDocument) map[string]string {
	ts := ""
	if !d.Timestamp.IsZero() {
		ts = d.Timestamp.UTC().Format(time.RFC3339)
	}
	return map[string]string{
		chunk.MetaSource:    string(d.SourceKind),
		chunk.MetaSourceID:  d.SourceID,
		chunk.MetaTitle:     d.Title,
		chunk.MetaTimestamp: ts,
		chunk.MetaThreadID:  d.ThreadID,
	}
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
