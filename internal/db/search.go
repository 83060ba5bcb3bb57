package db

import "github.com/kailas-cloud/evergreen/internal/domain/search/filter"

// KNNQuery asks an index for the K chunks nearest to Vector among those
// matching Filters. Scores come back as cosine similarity in [0, 1].
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	Filters      filter.Expression
	ReturnFields []string
}

// ListQuery pages through an index without ranking. NoContent returns keys
// only, which is how chunk keys are collected for deletion.
type ListQuery struct {
	IndexName     string
	Filters       filter.Expression
	Offset, Limit int
	SortBy        string
	NoContent     bool
	ReturnFields  []string
}

type SearchResult struct {
	// Total counts all matches, not only the returned page.
	Total   int
	Entries []SearchEntry
}

// SearchEntry is one hit. Score is zero for list queries.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
