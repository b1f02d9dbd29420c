package driven

import (
	"context"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
)

// ContentStore is the filterable, vector-searchable document index of
// content items.
//
// Implementations must guarantee the backing index exists before any
// upsert or query: a missing index is created with the fixed schema on
// first use rather than surfaced to callers. Payloads carrying fields
// outside the declared schema are rejected with SchemaMismatchError.
type ContentStore interface {
	// EnsureIndex creates the index with the fixed schema if absent,
	// and verifies the embedding dimension if present. A dimension
	// mismatch is a hard error.
	EnsureIndex(ctx context.Context) error

	// Upsert creates or fully replaces a content item keyed by ID.
	// Concurrent upserts to the same ID resolve last-write-wins on
	// updated_at.
	Upsert(ctx context.Context, item *domain.ContentItem) error

	// Get retrieves a content item by ID
	Get(ctx context.Context, id string) (*domain.ContentItem, error)

	// Query returns a ranked sequence of items matching the filters.
	// With an embedding: descending cosine similarity. Without:
	// updated_at descending.
	Query(ctx context.Context, q domain.ContentQuery) ([]*domain.ContentItem, error)

	// ListMissingEmbeddings returns items stored without an embedding,
	// so the embedding can be retried independently of re-fetching.
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.ContentItem, error)

	// Count returns the number of indexed items, optionally per subject
	Count(ctx context.Context, subject string) (int, error)

	// HealthCheck verifies the index backend is reachable
	HealthCheck(ctx context.Context) error
}
