package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/evergreen/internal/domain/document"
)

func newDoc(kind document.SourceKind, body string) document.RawDocument {
	return document.RawDocument{
		ID:         "doc-1",
		TenantID:   "acme",
		SourceKind: kind,
		SourceID:   "src-1",
		Title:      "Subject",
		Body:       body,
	}
}

func TestParse_EmailStripsSignatureAndQuotes(t *testing.T) {
	p := New(zap.NewNop())
	body := "Hi team,\n\nThe Q3 numbers are attached.\n\n--\nJohn Smith\nVP Sales\n"

	out := p.Parse(context.Background(), newDoc(document.M365Email, body))

	assert.Equal(t, "Hi team,\n\nThe Q3 numbers are attached.", out.Body)
	assert.Equal(t, "doc-1", out.ID)
	assert.Equal(t, "Subject", out.Title)
}

func TestParse_EmailTrimsQuotedReply(t *testing.T) {
	p := New(zap.NewNop())
	body := "Sounds good, let's ship it.\n\nOn Tue, Mar 3, 2024 at 10:00 AM Jane Doe <jane@acme.com> wrote:\n> Can we ship Friday?"

	out := p.Parse(context.Background(), newDoc(document.GoogleEmail, body))

	assert.Equal(t, "Sounds good, let's ship it.", out.Body)
}

func TestParse_EmailKeepsBodyLineStartingWithOn(t *testing.T) {
	p := New(zap.NewNop())
	body := "Team update.\nOn Monday we signed the renewal with Acme Corp for 3 years.\n\n" +
		"The memo Jane wrote: discount is final at 12%."

	out := p.Parse(context.Background(), newDoc(document.M365Email, body))

	assert.Contains(t, out.Body, "Acme Corp")
	assert.Contains(t, out.Body, "discount is final at 12%.")
}

func TestParse_EmailOutlookHeaderBlock(t *testing.T) {
	p := New(zap.NewNop())
	body := "Approved.\nFrom: Jane Doe\nSent: Monday\nTo: Bob\nSubject: Budget\n\nold thread"

	out := p.Parse(context.Background(), newDoc(document.M365Email, body))

	assert.Equal(t, "Approved.", out.Body)
}

func TestParse_EmailHTML(t *testing.T) {
	p := New(zap.NewNop())
	body := `<html><head><title>x</title><style>p{color:red}</style></head>
<body><p>Hello   <b>Bob</b>,</p><p>See <a href="https://acme.com/doc">the doc</a>.</p>
<ul><li>first</li><li>second</li></ul><img src="logo.png"><script>alert(1)</script></body></html>`

	out := p.Parse(context.Background(), newDoc(document.M365Email, body))

	assert.Contains(t, out.Body, "Hello Bob,")
	assert.Contains(t, out.Body, "See the doc (https://acme.com/doc).")
	assert.Contains(t, out.Body, "- first\n")
	assert.Contains(t, out.Body, "- second")
	assert.NotContains(t, out.Body, "alert")
	assert.NotContains(t, out.Body, "color:red")
	assert.NotContains(t, out.Body, "<")
}

func TestParse_ChatMentions(t *testing.T) {
	p := New(zap.NewNop())
	body := `<div>Thanks <at id="0">Jane Doe</at> for the update</div>`

	out := p.Parse(context.Background(), newDoc(document.M365Teams, body))

	assert.Equal(t, "Thanks @Jane Doe for the update", out.Body)
}

func TestParse_ChatKeepsSignatureLikeText(t *testing.T) {
	p := New(zap.NewNop())
	body := "deploy done\n--\nbot"

	out := p.Parse(context.Background(), newDoc(document.Slack, body))

	assert.Equal(t, "deploy done\n--\nbot", out.Body)
}

func TestParse_GenericNormalizesWhitespace(t *testing.T) {
	p := New(zap.NewNop())
	body := "  # Title  \n\n\n\n\nLine   with    spaces   \n   \n\n  end  "

	out := p.Parse(context.Background(), newDoc(document.M365File, body))

	assert.Equal(t, "# Title\n\nLine with spaces\n\nend", out.Body)
}

func TestParse_Idempotent(t *testing.T) {
	p := New(zap.NewNop())
	body := "<p>Hi</p><p>Numbers attached.</p><p>Sent from my iPhone</p>"

	once := p.Parse(context.Background(), newDoc(document.M365Email, body))
	twice := p.Parse(context.Background(), once)

	require.Equal(t, "Hi\n\nNumbers attached.", once.Body)
	assert.Equal(t, once.Body, twice.Body)
}

func TestParse_EmptyBody(t *testing.T) {
	p := New(zap.NewNop())

	out := p.Parse(context.Background(), newDoc(document.M365Email, "   \n\n "))

	assert.Empty(t, out.Body)
}

func TestParse_OriginalUntouched(t *testing.T) {
	p := New(zap.NewNop())
	in := newDoc(document.M365Email, "Hello\n\nThanks,\nBob")
	in.Metadata = map[string]string{"k": "v"}

	out := p.Parse(context.Background(), in)

	assert.Equal(t, "Hello", out.Body)
	assert.Equal(t, "Hello\n\nThanks,\nBob", in.Body)
	assert.Equal(t, in.Metadata, out.Metadata)
}

func TestParse_LogsNothingOnSuccess(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := New(zap.New(core))

	p.Parse(context.Background(), newDoc(document.Slack, "plain text"))

	assert.Equal(t, 0, logs.Len())
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"<html><body>x</body></html>", true},
		{"line<br/>line", true},
		{"line<BR>line", true},
		{`<DIV class="a">x</DIV>`, true},
		{"<p>para</p>", true},
		{"a < b and c > d", false},
		{"<pre>code</pre>", false},
		{"plain text", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, IsHTML(tc.in), tc.in)
	}
}

func TestStripSignature(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"dash separator", "body\n-- \nsig", "body"},
		{"mobile", "body\nSent from my iPhone", "body"},
		{"outlook", "body\nGet Outlook for iOS", "body"},
		{"underscores", "body\n_____\nlegal", "body"},
		{"regards", "body\nRegards,\nBob", "body"},
		{"best case insensitive", "body\nbest\nBob", "body"},
		{"no signature", "body only", "body only"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripSignature(tc.in))
		})
	}
}

func TestTrimQuotedReplies(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"gmail", "yes\nOn Mon, Bob wrote:\n> q", "yes"},
		{"quoted gmail", "yes\n> On Mon, Bob wrote:\n> q", "yes"},
		{"original message", "ok\n----- Original Message -----\nFrom: x", "ok"},
		{"no quote", "nothing quoted", "nothing quoted"},
		{"wrote on a later line", "Update.\nOn Monday we renewed.\nJane wrote: final", "Update.\nOn Monday we renewed.\nJane wrote: final"},
		{"headers split by body text", "ok\nFrom: Jane\nnotes\nSent: Monday\nTo: Bob\nSubject: x", "ok\nFrom: Jane\nnotes\nSent: Monday\nTo: Bob\nSubject: x"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TrimQuotedReplies(tc.in))
		})
	}
}

func TestHTMLToText_Links(t *testing.T) {
	text, err := HTMLToText(`<p><a href="#top">top</a> <a href="https://x.io">https://x.io</a> <a href="https://y.io"></a></p>`)
	require.NoError(t, err)
	assert.Equal(t, "top https://x.io https://y.io", NormalizeWhitespace(text))
}
