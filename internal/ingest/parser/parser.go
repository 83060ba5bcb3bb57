// Package parser normalizes raw document bodies into clean plain text.
package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain/document"
)

var (
	htmlMarker = regexp.MustCompile(`(?i)<(html|body|div|p)[\s>/]|<br\s*/?>`)
	chatAt     = regexp.MustCompile(`(?i)<at[^>]*>([^<]*)</at>`)

	// Everything from the match to the end of the text is dropped.
	signaturePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)\n--\s*\n.*$`),
		regexp.MustCompile(`(?is)\nSent from my .*$`),
		regexp.MustCompile(`(?is)\nGet Outlook for .*$`),
		regexp.MustCompile(`(?is)\n_{3,}.*$`),
		regexp.MustCompile(`(?is)\n(Regards|Best|Thanks),?\s*\n.*$`),
	}

	// The text is truncated at the start of the match. Attribution and
	// header lines must each fit on one line.
	quotePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\n(>+ ?)?On [^\n]* wrote:(?s:.*)$`),
		regexp.MustCompile(`(?i)\n-{3,}[ \t]*Original Message[ \t]*-{3,}(?s:.*)$`),
		regexp.MustCompile(`(?i)\nFrom: [^\n]*\nSent: [^\n]*\nTo: [^\n]*\nSubject: (?s:.*)$`),
	}

	manyNewlines = regexp.MustCompile(`\n{3,}`)
	manySpaces   = regexp.MustCompile(` {2,}`)
	inlineSpace  = regexp.MustCompile(`\s+`)
)

// Parser cleans document bodies according to their source kind.
type Parser struct {
	logger *zap.Logger
}

// New creates a Parser.
func New(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse returns a copy of d with a cleaned body. It never fails:
// on any internal error the original document is returned unchanged.
func (p *Parser) Parse(_ context.Context, d document.RawDocument) (out document.RawDocument) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("parser panicked, keeping original body",
				zap.String("document_id", d.ID),
				zap.Any("panic", r),
			)
			out = d
		}
	}()

	body, err := p.clean(d.SourceKind, d.Body)
	if err != nil {
		p.logger.Warn("failed to parse document, keeping original body",
			zap.String("document_id", d.ID),
			zap.String("source", string(d.SourceKind)),
			zap.Error(err),
		)
		return d
	}
	return d.WithBody(body)
}

func (p *Parser) clean(kind document.SourceKind, body string) (string, error) {
	text := body

	if kind.IsChat() {
		text = chatAt.ReplaceAllString(text, "@$1")
	}

	if IsHTML(text) {
		converted, err := HTMLToText(text)
		if err != nil {
			return "", err
		}
		text = converted
	}

	if kind.IsEmail() {
		text = StripSignature(text)
		text = TrimQuotedReplies(text)
	}

	return NormalizeWhitespace(text), nil
}

// IsHTML reports whether text looks like markup.
func IsHTML(text string) bool {
	return htmlMarker.MatchString(text)
}

// StripSignature removes common email signature blocks.
func StripSignature(text string) string {
	for _, re := range signaturePatterns {
		text = re.ReplaceAllString(text, "")
	}
	return text
}

// TrimQuotedReplies cuts the text at the first quoted-reply marker.
func TrimQuotedReplies(text string) string {
	for _, re := range quotePatterns {
		if loc := re.FindStringIndex(text); loc != nil {
			text = text[:loc[0]]
		}
	}
	return text
}

// NormalizeWhitespace collapses runs of spaces and blank lines and trims every line.
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = manySpaces.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "header": true, "footer": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "table": true, "tr": true, "blockquote": true, "pre": true,
	"hr": true, "body": true, "html": true,
}

// HTMLToText converts markup into readable text: links keep their targets,
// list items get "- " bullets, and block elements break lines.
func HTMLToText(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, head, img, noscript").Remove()

	var sb strings.Builder
	walk(doc.Selection, &sb)
	return sb.String(), nil
}

func walk(sel *goquery.Selection, sb *strings.Builder) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		switch {
		case name == "#text":
			sb.WriteString(inlineSpace.ReplaceAllString(s.Text(), " "))
		case name == "br":
			sb.WriteString("\n")
		case name == "a":
			text := strings.TrimSpace(inlineSpace.ReplaceAllString(s.Text(), " "))
			href, _ := s.Attr("href")
			switch {
			case href == "" || strings.HasPrefix(href, "#") || href == text:
				sb.WriteString(text)
			case text == "":
				sb.WriteString(href)
			default:
				sb.WriteString(text + " (" + href + ")")
			}
		case name == "li":
			sb.WriteString("\n- ")
			walk(s, sb)
			sb.WriteString("\n")
		case name == "td" || name == "th":
			walk(s, sb)
			sb.WriteString(" ")
		case blockElements[name]:
			sb.WriteString("\n")
			walk(s, sb)
			sb.WriteString("\n")
		default:
			walk(s, sb)
		}
	})
}
