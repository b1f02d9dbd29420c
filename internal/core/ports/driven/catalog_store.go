package driven

import (
	"context"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
)

// CatalogStore persists discovered resource catalog entries so the
// extraction phase can run independently of discovery and restart
// after partial failure.
type CatalogStore interface {
	// SaveEntries upserts catalog entries keyed by URL. Re-discovered
	// URLs keep their original discovery timestamp but return to
	// pending, so the next extraction pass refreshes their content.
	// Returns the number of entries that were new.
	SaveEntries(ctx context.Context, entries []*domain.ResourceCatalogEntry) (int, error)

	// ListPending returns entries not yet extracted for a subject,
	// oldest first.
	ListPending(ctx context.Context, subject string, limit int) ([]*domain.ResourceCatalogEntry, error)

	// MarkExtracted stamps an entry as consumed by the extractor.
	// Idempotent; re-extraction restamps.
	MarkExtracted(ctx context.Context, url string, at time.Time) error

	// SaveRun records the outcome of an indexing run
	SaveRun(ctx context.Context, run *domain.CatalogRun) error

	// LastRun returns the most recent run for a subject, or ErrNotFound
	LastRun(ctx context.Context, subject string) (*domain.CatalogRun, error)

	// CountPending returns how many entries await extraction for a subject
	CountPending(ctx context.Context, subject string) (int, error)
}
