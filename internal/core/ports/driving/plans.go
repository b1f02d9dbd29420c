package driving

import (
	"context"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
)

// BuildPlanRequest describes a learning plan to assemble for a student.
type BuildPlanRequest struct {
	Profile    *domain.StudentProfile `json:"profile"`
	Subject    string                 `json:"subject"`
	Weeks      int                    `json:"weeks,omitempty"`
	Activities int                    `json:"activities,omitempty"`
	// AllowUnbound permits assembling a plan with placeholder
	// activities when no matching content exists in the index.
	AllowUnbound bool `json:"allow_unbound,omitempty"`
}

// StatusUpdate changes a single activity's status within a plan.
type StatusUpdate struct {
	PlanID      string                `json:"plan_id"`
	ActivityID  string                `json:"activity_id"`
	Status      domain.ActivityStatus `json:"status"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// PlanService assembles and mutates learning plans.
type PlanService interface {
	BuildPlan(ctx context.Context, req BuildPlanRequest) (*domain.LearningPlan, error)
	UpdateActivityStatus(ctx context.Context, upd StatusUpdate) (*domain.LearningPlan, error)
	GetPlan(ctx context.Context, planID string) (*domain.LearningPlan, error)
	ListPlans(ctx context.Context, studentID string, subject string) ([]*domain.LearningPlan, error)
}
