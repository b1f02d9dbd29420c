package driven

import (
	"context"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
)

// PlanStore persists learning plans in their weekly-slot storage shape.
// Encoding and decoding between LearningPlan and PlanDocument is the
// domain codec's job; the store deals only in documents.
type PlanStore interface {
	// Save creates or updates a plan document
	Save(ctx context.Context, doc *domain.PlanDocument) error

	// Get retrieves a plan document by ID, or ErrNotFound
	Get(ctx context.Context, id string) (*domain.PlanDocument, error)

	// ListByStudent retrieves a student's plan documents, newest first
	ListByStudent(ctx context.Context, studentID string) ([]*domain.PlanDocument, error)
}
