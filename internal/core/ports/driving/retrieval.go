package driving

import (
	"context"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
)

// SearchRequest is a free-text content search with optional exact filters
type SearchRequest struct {
	Query       string             `json:"query"`
	Subject     string             `json:"subject,omitempty"`
	ContentType domain.ContentType `json:"content_type,omitempty"`
	Limit       int                `json:"limit,omitempty"`
}

// RetrievalService ranks and filters content candidates for callers.
// Embedding-service outages degrade results to filter/recency mode;
// that degradation is a first-class success path, never an error.
type RetrievalService interface {
	// Recommend returns content matched to a student profile,
	// deduplicated by content ID.
	Recommend(ctx context.Context, profile *domain.StudentProfile, subject string, limit int) (*domain.RetrievalResult, error)

	// Search embeds the query text and runs a similarity query,
	// degrading to a keyword/filter query when embedding is unavailable.
	Search(ctx context.Context, req SearchRequest) (*domain.RetrievalResult, error)
}
