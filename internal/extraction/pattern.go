package extraction

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/kailas-cloud/evergreen/internal/domain/entity"
)

const (
	months   = `January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sept|Sep|Oct|Nov|Dec`
	weekdays = `Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday`
	orgTail  = `Inc|Corp|Corporation|LLC|Ltd|GmbH|Group|Company|Co`
)

type rule struct {
	typ        entity.Type
	re         *regexp.Regexp
	confidence float64
}

// Rules run in priority order; a later span overlapping an accepted one is dropped.
var rules = []rule{
	{entity.Email, regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), 0.95},
	{entity.Date, regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), 0.9},
	{entity.Date, regexp.MustCompile(`\b(?:` + months + `)\.? \d{1,2}(?:st|nd|rd|th)?(?:,? \d{4})?\b`), 0.8},
	{entity.Date, regexp.MustCompile(`\b(?:` + weekdays + `)\b`), 0.7},
	{entity.Money, regexp.MustCompile(`\$ ?\d+(?:,\d{3})*(?:\.\d+)?(?: ?(?:million|billion|thousand|bn|[kKmM])\b)?`), 0.85},
	{entity.Money, regexp.MustCompile(`\b(?:USD|EUR|GBP) ?\d+(?:,\d{3})*(?:\.\d+)?(?: (?:million|billion|thousand))?`), 0.85},
	{entity.Money, regexp.MustCompile(`(?i)\b\d+(?:,\d{3})*(?:\.\d+)? (?:(?:million|billion|thousand) )?(?:dollars|euros|pounds)\b`), 0.85},
	{entity.Phone, regexp.MustCompile(`(?:\+\d{1,3}[ .-]?)?(?:\(\d{3}\)|\b\d{3})[ .-]?\d{3}[ .-]?\d{4}\b`), 0.85},
	{entity.Organization, regexp.MustCompile(`\b(?:[A-Z][A-Za-z0-9&'-]*[ \t]+){1,4}(?:` + orgTail + `)\b`), 0.75},
	{entity.Person, regexp.MustCompile(`\b[A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)+\b`), 0.6},
}

// stopWords never start or end a name: greetings, function words and calendar words.
var stopWords = toSet(`hi hello hey dear thanks thank regards best cheers welcome
	the a an and or but with from to for of in on at by as is are was were be
	this that these those we i you he she they it our my your his her their
	please re fw fwd subject meeting call team all everyone
	later then also so after before when if just
	january february march april may june july august september october november december
	monday tuesday wednesday thursday friday saturday sunday today tomorrow yesterday`)

func toSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		out[w] = true
	}
	return out
}

// PatternRecognizer is a dependency-free recognizer built on regular
// expressions and capitalization heuristics.
type PatternRecognizer struct{}

var _ Recognizer = PatternRecognizer{}

// Recognize returns non-overlapping spans of the requested types, ordered by position.
func (PatternRecognizer) Recognize(_ context.Context, text string, types []entity.Type) ([]Span, error) {
	want := make(map[entity.Type]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	var spans []Span
	for _, r := range rules {
		if !want[r.typ] {
			continue
		}
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if r.typ == entity.Person || r.typ == entity.Organization {
				var ok bool
				start, end, ok = trimName(text, start, end, r.typ)
				if !ok {
					continue
				}
			}
			if overlaps(spans, start, end) {
				continue
			}
			spans = append(spans, Span{
				Text:       text[start:end],
				Type:       r.typ,
				Start:      start,
				End:        end,
				Confidence: r.confidence,
			})
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans, nil
}

// trimName drops leading and trailing stop words from a capitalized run.
// A person keeps 2 or 3 words; an organization keeps its suffix plus at least one word.
func trimName(text string, start, end int, typ entity.Type) (int, int, bool) {
	type word struct{ s, e int }
	var words []word
	for i := start; i < end; {
		for i < end && (text[i] == ' ' || text[i] == '\t') {
			i++
		}
		j := i
		for j < end && text[j] != ' ' && text[j] != '\t' {
			j++
		}
		if j > i {
			words = append(words, word{i, j})
		}
		i = j
	}

	isStop := func(w word) bool { return stopWords[strings.ToLower(text[w.s:w.e])] }
	for len(words) > 0 && isStop(words[0]) {
		words = words[1:]
	}
	if typ == entity.Person {
		for len(words) > 0 && isStop(words[len(words)-1]) {
			words = words[:len(words)-1]
		}
		if len(words) < 2 || len(words) > 3 {
			return 0, 0, false
		}
		for _, w := range words {
			if isStop(w) {
				return 0, 0, false
			}
		}
	} else if len(words) < 2 {
		return 0, 0, false
	}
	return words[0].s, words[len(words)-1].e, true
}

func overlaps(spans []Span, start, end int) bool {
	for _, s := range spans {
		if start < s.End && s.Start < end {
			return true
		}
	}
	return false
}
