package driving

import (
	"context"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
)

// PipelineService exposes the discovery and extraction pipeline to
// operators. Long-running work is enqueued, not executed inline.
type PipelineService interface {
	// TriggerIndex enqueues a catalog discovery run for a subject.
	// A run already holding the subject's pipeline lock surfaces as
	// ErrRunInProgress when the task executes, not here.
	TriggerIndex(ctx context.Context, subject string) (*domain.Task, error)

	// TriggerExtract enqueues extraction of pending catalog entries for
	// a subject.
	TriggerExtract(ctx context.Context, subject string) (*domain.Task, error)

	// TriggerEmbeddingRefresh enqueues a retry pass over indexed items
	// that were stored without embeddings.
	TriggerEmbeddingRefresh(ctx context.Context) (*domain.Task, error)

	// PipelineStatus reports last catalog run, pending-extraction count
	// and index size for a subject.
	PipelineStatus(ctx context.Context, subject string) (*PipelineStatusReport, error)
}

// PipelineStatusReport summarises pipeline state for one subject.
type PipelineStatusReport struct {
	Subject          string             `json:"subject"`
	LastRun          *domain.CatalogRun `json:"last_run,omitempty"`
	PendingExtract   int                `json:"pending_extract"`
	IndexedItems     int64              `json:"indexed_items"`
	MissingEmbedding int                `json:"missing_embedding"`
}
