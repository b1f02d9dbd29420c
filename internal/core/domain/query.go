package domain

// RetrievalMode identifies which ranking strategy produced a result set
type RetrievalMode string

const (
	RetrievalModeSemantic RetrievalMode = "semantic" // cosine similarity over embeddings
	RetrievalModeFilter   RetrievalMode = "filter"   // exact-match filters, recency ranked
)

// ContentFilters is an exact-match conjunction over index fields.
// Zero values mean "no constraint".
type ContentFilters struct {
	Subject     string            `json:"subject,omitempty"`
	ContentType ContentType       `json:"content_type,omitempty"`
	Difficulty  []DifficultyLevel `json:"difficulty,omitempty"`   // any-of
	GradeLevels []int             `json:"grade_levels,omitempty"` // any-of, intersects item grade set
}

// ContentQuery is a single request against the content store. When
// Embedding is set, matching items are ranked by descending cosine
// similarity; otherwise ranking falls back to updated_at descending.
type ContentQuery struct {
	Filters   ContentFilters `json:"filters"`
	Text      string         `json:"text,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	TopK      int            `json:"top_k"`
}

// DefaultTopK is the result size used when a query leaves TopK unset
const DefaultTopK = 10

// MaxTopK caps requested result sizes
const MaxTopK = 100

// RetrievalResult is the uniform result type produced by every
// retrieval strategy tier, so fallbacks are indistinguishable to
// callers apart from the mode marker.
type RetrievalResult struct {
	Items []*ContentItem `json:"items"`
	Mode  RetrievalMode  `json:"mode"`
}
