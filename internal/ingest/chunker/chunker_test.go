package chunker

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/chunk"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
)

func doc(kind document.SourceKind, body string) document.RawDocument {
	return document.RawDocument{
		ID:         "doc-1",
		TenantID:   "acme",
		SourceKind: kind,
		SourceID:   "src-1",
		Title:      "Weekly sync",
		ThreadID:   "thread-9",
		Timestamp:  time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC),
		Body:       body,
	}
}

// words returns n distinct 7-char words ("w000001" ...).
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%06d", i+1)
	}
	return strings.Join(parts, " ")
}

func assertInvariants(t *testing.T, c *Chunker, chunks []chunk.Chunk, cfg Config) {
	t.Helper()
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex, "dense indices")
		assert.NotEmpty(t, strings.TrimSpace(ch.Content), "chunk %d empty", i)
		assert.Equal(t, c.tok.Count(ch.Content), ch.TokenCount)
		if len(strings.Fields(ch.Content)) > 1 {
			assert.LessOrEqual(t, ch.TokenCount, cfg.MaxTokens, "chunk %d over budget", i)
		}
		assert.Equal(t, chunk.ID("doc-1", i), ch.ID)
	}
}

func TestChunk_EmptyBody(t *testing.T) {
	c := New()
	_, err := c.Chunk(doc(document.M365Email, " \n\t "))
	require.ErrorIs(t, err, domain.ErrEmptyDocument)
}

func TestChunk_ShortEmailSingleChunk(t *testing.T) {
	c := New()
	chunks, err := c.Chunk(doc(document.M365Email, "Hi Bob,\n\nNumbers attached."))
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	ch := chunks[0]
	assert.Equal(t, "Hi Bob,\n\nNumbers attached.", ch.Content)
	assert.Equal(t, "doc-1", ch.DocumentID)
	assert.Equal(t, "acme", ch.TenantID)
	assert.Equal(t, "m365_email", ch.Metadata[chunk.MetaSource])
	assert.Equal(t, "src-1", ch.Metadata[chunk.MetaSourceID])
	assert.Equal(t, "Weekly sync", ch.Metadata[chunk.MetaTitle])
	assert.Equal(t, "thread-9", ch.Metadata[chunk.MetaThreadID])
	assert.Equal(t, "2024-03-03T10:00:00Z", ch.Metadata[chunk.MetaTimestamp])
}

func TestChunk_EmailPacksParagraphs(t *testing.T) {
	c := New(WithProfile("m365_email", Config{MaxTokens: 20, OverlapTokens: 0}))
	// each paragraph is 39 chars = 9 tokens; two fit (80 chars with separator = 20 tokens)
	para := strings.Repeat("a", 39)
	body := strings.Join([]string{para, para, para, para, para}, "\n\n")

	chunks, err := c.Chunk(doc(document.M365Email, body))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, para+"\n\n"+para, chunks[0].Content)
	assert.Equal(t, para, chunks[2].Content)
	assertInvariants(t, c, chunks, c.ConfigFor(document.M365Email))
}

func TestChunk_EmailOversizedParagraphUsesWordWindow(t *testing.T) {
	cfg := Config{MaxTokens: 10, OverlapTokens: 4}
	c := New(WithProfile("email", cfg))

	chunks, err := c.Chunk(doc(document.GoogleEmail, "short intro\n\n"+words(30)))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 3)
	assert.Equal(t, "short intro", chunks[0].Content)
	assertInvariants(t, c, chunks, cfg)

	// windows overlap by whole words
	second := strings.Fields(chunks[1].Content)
	third := strings.Fields(chunks[2].Content)
	require.Len(t, second, 5)
	assert.Equal(t, second[3:], third[:2])
}

func TestChunk_ChatSplitsSentences(t *testing.T) {
	cfg := Config{MaxTokens: 10, OverlapTokens: 0}
	c := New(WithProfile("chat", cfg))
	body := "The deploy finished. Staging looks good! Can we ship to prod today? I think yes."

	chunks, err := c.Chunk(doc(document.Slack, body))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, "The deploy finished. Staging looks good!", chunks[0].Content)
	assertInvariants(t, c, chunks, cfg)

	var rebuilt []string
	for _, ch := range chunks {
		rebuilt = append(rebuilt, ch.Content)
	}
	assert.Equal(t, body, strings.Join(rebuilt, " "))
}

func TestChunk_GenericSplitsAtHeaders(t *testing.T) {
	cfg := Config{MaxTokens: 30, OverlapTokens: 5}
	c := New(WithProfile("file", cfg))
	body := "# Intro\n" + strings.Repeat("x", 60) +
		"\n## Details\n" + strings.Repeat("y", 60) +
		"\n## Long\n" + words(40)

	chunks, err := c.Chunk(doc(document.M365File, body))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 3)
	assert.True(t, strings.HasPrefix(chunks[0].Content, "# Intro"))
	assert.True(t, strings.HasPrefix(chunks[1].Content, "## Details"))
	assertInvariants(t, c, chunks, cfg)
}

func TestChunk_GenericWithoutHeadersFallsBackToParagraphs(t *testing.T) {
	cfg := Config{MaxTokens: 20}
	c := New(WithProfile("fallback", cfg), WithProfile("calendar", cfg))
	para := strings.Repeat("m", 60)

	chunks, err := c.Chunk(doc(document.GoogleCalendar, para+"\n\n"+para))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, para, chunks[0].Content)
}

func TestChunk_MergesSmallTrailingChunk(t *testing.T) {
	cfg := Config{MaxTokens: 20, MinChunkSize: 5}
	c := New(WithProfile("email", cfg))
	// 12 words overflow one window; the 2-word tail and "ok" are both small
	body := words(12) + "\n\nok"

	chunks, err := c.Chunk(doc(document.M365Email, body))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, words(10), chunks[0].Content)
	assert.Equal(t, "w000011 w000012\n\nok", chunks[1].Content)
	assertInvariants(t, c, chunks, cfg)
}

func TestChunk_SingleHugeWordAllowedOverBudget(t *testing.T) {
	cfg := Config{MaxTokens: 5, OverlapTokens: 2}
	c := New(WithProfile("slack", cfg))
	huge := strings.Repeat("z", 100)

	chunks, err := c.Chunk(doc(document.Slack, "hi there "+huge+" bye now"))
	require.NoError(t, err)
	found := false
	for _, ch := range chunks {
		if ch.Content == huge {
			found = true
		}
	}
	assert.True(t, found, "oversized word should be its own chunk")
	assertInvariants(t, c, chunks, cfg)
}

func TestChunk_DerivesDocumentID(t *testing.T) {
	c := New()
	d := doc(document.Slack, "hello")
	d.ID = ""

	chunks, err := c.Chunk(d)
	require.NoError(t, err)
	assert.Equal(t, document.DeriveID("acme", document.Slack, "src-1"), chunks[0].DocumentID)
}

func TestChunk_ZeroTimestampLeftBlank(t *testing.T) {
	c := New()
	d := doc(document.Slack, "hello")
	d.Timestamp = time.Time{}

	chunks, err := c.Chunk(d)
	require.NoError(t, err)
	assert.Empty(t, chunks[0].Metadata[chunk.MetaTimestamp])
	assert.Zero(t, chunks[0].Unix())
}

func TestConfigFor_Precedence(t *testing.T) {
	c := New(
		WithProfile("chat", Config{MaxTokens: 100}),
		WithProfile("slack", Config{MaxTokens: 50}),
		WithProfile("fallback", Config{MaxTokens: 7}),
	)

	assert.Equal(t, 50, c.ConfigFor(document.Slack).MaxTokens)
	assert.Equal(t, 100, c.ConfigFor(document.M365Teams).MaxTokens)
	assert.Equal(t, 1024, c.ConfigFor(document.GoogleFile).MaxTokens)
	assert.Equal(t, 512, c.ConfigFor(document.M365Calendar).MaxTokens)
	assert.Equal(t, 7, c.ConfigFor("fax").MaxTokens)
}

func TestDefaultConfigs(t *testing.T) {
	c := New()
	assert.Equal(t, Config{MaxTokens: 512, OverlapTokens: 50, MinChunkSize: 100}, c.ConfigFor(document.M365Email))
	assert.Equal(t, 256, c.ConfigFor(document.M365Teams).MaxTokens)
	assert.Equal(t, 0, c.ConfigFor(document.Slack).OverlapTokens)
	assert.Equal(t, 100, c.ConfigFor(document.M365File).OverlapTokens)
	assert.Equal(t, 100, c.ConfigFor("fax").MinChunkSize)
}

func TestWordWindows_AlwaysProgresses(t *testing.T) {
	// overlap as large as the window must not loop
	c := New()
	out := c.wordWindows(words(12), Config{MaxTokens: 4, OverlapTokens: 4})
	require.NotEmpty(t, out)
	assert.Contains(t, out[len(out)-1], "w000012")
	assert.Less(t, len(out), 24)
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two!  Three? four")
	assert.Equal(t, []string{"One.", "Two!", "Three?", "four"}, got)
}

func TestSplitHeaders(t *testing.T) {
	got := splitHeaders("preface\n# A\nbody a\n## B\nbody b\n#hashtag stays")
	assert.Equal(t, []string{"preface", "# A\nbody a", "## B\nbody b\n#hashtag stays"}, got)
}

func TestEstimator(t *testing.T) {
	assert.Equal(t, 2, Estimator{CharsPerToken: 4}.Count("12345678"))
	assert.Equal(t, 2, Estimator{}.Count("12345678"))
	assert.Equal(t, 1, Estimator{CharsPerToken: 4}.Count("héllo"))
}
