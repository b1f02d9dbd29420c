package driven

import (
	"context"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
)

// ListingPage is one expansion of a subject's dynamically-loaded
// resource listing.
type ListingPage struct {
	// Entries discovered on this expansion (may repeat earlier pages;
	// the indexer dedupes by URL)
	Entries []*domain.ResourceCatalogEntry

	// HasMore reports whether the source advertises further expansions.
	// The indexer still guards with its own no-progress termination and
	// hard page ceiling; sources lie about this routinely.
	HasMore bool
}

// ResourcePage is the raw material extracted from a single resource URL
type ResourcePage struct {
	URL         string
	Title       string
	Description string
	Body        string
	DurationMin int // 0 when the page carries no explicit duration
	HTML        string
}

// SubjectSource fetches subject listings and resource pages from the
// content site. Implementations own their HTTP timeout and retry
// policy; errors surfacing from these calls have already been retried.
type SubjectSource interface {
	// ListPage loads one expansion (0-based) of a subject listing
	ListPage(ctx context.Context, subject string, page int) (*ListingPage, error)

	// FetchResource loads a single resource page for extraction
	FetchResource(ctx context.Context, url string) (*ResourcePage, error)

	// Subjects returns the subjects this source can index
	Subjects() []string
}

// Classifier derives classification metadata from a fetched resource
// page. The exact heuristic is deliberately pluggable; callers only
// depend on this interface.
type Classifier interface {
	// Classify determines content type, difficulty, grade levels,
	// topics, keywords and a duration estimate for a resource page.
	Classify(page *ResourcePage, subject string) *Classification
}

// Classification is the classifier's verdict for one resource
type Classification struct {
	ContentType     domain.ContentType
	DifficultyLevel domain.DifficultyLevel
	GradeLevel      []int
	Topics          []string
	Keywords        []string
	DurationMinutes int
}
