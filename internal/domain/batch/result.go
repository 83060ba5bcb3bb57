package batch

import "github.com/kailas-cloud/evergreen/internal/domain/ingest"

// Report is the outcome of a batch ingest, one record per input in input order.
type Report struct {
	Results   []ingest.IndexedDocument `json:"results"`
	Total     int                      `json:"total"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
}

// NewReport tallies per-document results.
func NewReport(results []ingest.IndexedDocument) Report {
	r := Report{Results: results, Total: len(results)}
	for i := range results {
		if results[i].Status == ingest.StatusIndexed {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
	return r
}

// FailedIDs returns ids of documents that did not reach indexed.
func (r *Report) FailedIDs() []string {
	var ids []string
	for i := range r.Results {
		if r.Results[i].Status != ingest.StatusIndexed {
			ids = append(ids, r.Results[i].ID)
		}
	}
	return ids
}
