package chunker

import (
	"regexp"
	"strings"
)

var (
	sentenceEnd = regexp.MustCompile(`[.!?]\s+`)
	headerStart = regexp.MustCompile(`\n#{1,6}\s`)
)

// splitSentences cuts after terminal punctuation followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	prev := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, text[prev:loc[0]+1])
		prev = loc[1]
	}
	if prev < len(text) {
		out = append(out, text[prev:])
	}
	return out
}

// splitHeaders cuts before every markdown header line and drops blank sections.
func splitHeaders(text string) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	prev := 0
	for _, loc := range headerStart.FindAllStringIndex(text, -1) {
		add(text[prev:loc[0]])
		prev = loc[0] + 1
	}
	add(text[prev:])
	return out
}
