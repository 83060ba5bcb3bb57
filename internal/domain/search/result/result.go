package result

// Hit is a single chunk returned by a vector search.
type Hit struct {
	id         string
	documentID string
	score      float64
	content    string
	metadata   map[string]string
}

// New creates a search hit.
func New(id, documentID string, score float64, content string, metadata map[string]string) Hit {
	return Hit{
		id: id, documentID: documentID, score: score,
		content: content, metadata: metadata,
	}
}

// ID returns the chunk identifier.
func (h *Hit) ID() string { return h.id }

// DocumentID returns the parent document identifier.
func (h *Hit) DocumentID() string { return h.documentID }

// Score returns the similarity in [0, 1].
func (h *Hit) Score() float64 { return h.score }

// Content returns the chunk text.
func (h *Hit) Content() string { return h.content }

// Metadata returns the chunk metadata (source, title, timestamp, ...).
func (h *Hit) Metadata() map[string]string { return h.metadata }
