package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driving"
)

const (
	defaultPlanWeeks      = 4
	activitiesPerWeek     = 3
	minCandidatePool      = 15
	defaultActivityLength = 20 // minutes, when the content has no duration
)

// Ensure planService implements PlanService
var _ driving.PlanService = (*planService)(nil)

// planService implements the PlanService interface
type planService struct {
	retrieval driving.RetrievalService
	plans     driven.PlanStore
	logger    *slog.Logger
}

// NewPlanService creates a new PlanService
func NewPlanService(
	retrieval driving.RetrievalService,
	plans driven.PlanStore,
	logger *slog.Logger,
) driving.PlanService {
	if logger == nil {
		logger = slog.Default()
	}
	return &planService{
		retrieval: retrieval,
		plans:     plans,
		logger:    logger,
	}
}

// BuildPlan assembles a learning plan for a student. Candidates come
// from retrieval for the student's profile; the activity template is
// filled first with unused candidates, then by rotating through the
// pool so repeats spread out instead of clustering.
func (s *planService) BuildPlan(ctx context.Context, req driving.BuildPlanRequest) (*domain.LearningPlan, error) {
	if req.Profile == nil || req.Profile.StudentID == "" {
		return nil, fmt.Errorf("%w: student profile is required", domain.ErrInvalidInput)
	}
	if req.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}

	weeks := req.Weeks
	if weeks <= 0 {
		weeks = defaultPlanWeeks
	}
	total := req.Activities
	if total <= 0 {
		total = weeks * activitiesPerWeek
	}

	poolSize := total
	if poolSize < minCandidatePool {
		poolSize = minCandidatePool
	}

	result, err := s.retrieval.Recommend(ctx, req.Profile, req.Subject, poolSize)
	if err != nil {
		return nil, fmt.Errorf("retrieve plan candidates: %w", err)
	}
	candidates := result.Items

	if len(candidates) == 0 && !req.AllowUnbound {
		return nil, fmt.Errorf("%w: subject %q", domain.ErrContentUnavailable, req.Subject)
	}

	now := time.Now()
	plan := &domain.LearningPlan{
		ID:        uuid.NewString(),
		StudentID: req.Profile.StudentID,
		Title:     fmt.Sprintf("%s Learning Plan", req.Subject),
		Description: fmt.Sprintf("A personalized %d-week %s plan for grade %d",
			weeks, req.Subject, req.Profile.GradeLevel),
		Subject:   req.Subject,
		Status:    domain.ActivityNotStarted,
		StartDate: now,
		EndDate:   now.AddDate(0, 0, weeks*7),
		CreatedAt: now,
		UpdatedAt: now,
	}

	assign := newRotation(candidates)
	topics := make(map[string]bool)

	for i := 0; i < total; i++ {
		week := i/activitiesPerWeek + 1
		if week > weeks {
			week = weeks
		}

		activity := &domain.Activity{
			ID:              uuid.NewString(),
			Week:            week,
			Order:           i + 1,
			Status:          domain.ActivityNotStarted,
			DurationMinutes: defaultActivityLength,
		}

		if item := assign.next(); item != nil {
			bindActivity(activity, item)
			for _, topic := range item.Topics {
				topics[topic] = true
			}
		} else {
			activity.Title = fmt.Sprintf("%s activity %d", req.Subject, i+1)
			activity.Description = "Content to be assigned"
		}

		plan.Activities = append(plan.Activities, activity)
	}

	for topic := range topics {
		plan.Topics = append(plan.Topics, topic)
	}
	plan.Recompute()

	if err := s.save(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.Info("assembled learning plan",
		"plan_id", plan.ID,
		"student_id", plan.StudentID,
		"subject", plan.Subject,
		"activities", len(plan.Activities),
		"candidates", len(candidates),
		"mode", result.Mode,
	)

	return plan, nil
}

// UpdateActivityStatus applies a status change to one activity and
// recomputes plan status and progress in the same write.
func (s *planService) UpdateActivityStatus(ctx context.Context, upd driving.StatusUpdate) (*domain.LearningPlan, error) {
	plan, err := s.GetPlan(ctx, upd.PlanID)
	if err != nil {
		return nil, err
	}

	activity := plan.FindActivity(upd.ActivityID)
	if activity == nil {
		return nil, fmt.Errorf("%w: activity %s", domain.ErrNotFound, upd.ActivityID)
	}

	if err := activity.Transition(upd.Status, upd.CompletedAt, time.Now()); err != nil {
		return nil, err
	}

	plan.Recompute()
	plan.UpdatedAt = time.Now()

	if err := s.save(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// GetPlan retrieves and decodes a plan by ID
func (s *planService) GetPlan(ctx context.Context, planID string) (*domain.LearningPlan, error) {
	doc, err := s.plans.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	plan, err := domain.DecodePlan(doc)
	if err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", planID, err)
	}
	return plan, nil
}

// ListPlans retrieves a student's plans, optionally filtered by subject
func (s *planService) ListPlans(ctx context.Context, studentID string, subject string) ([]*domain.LearningPlan, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", domain.ErrInvalidInput)
	}

	docs, err := s.plans.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	plans := make([]*domain.LearningPlan, 0, len(docs))
	for _, doc := range docs {
		if subject != "" && doc.Subject != subject {
			continue
		}
		plan, err := domain.DecodePlan(doc)
		if err != nil {
			return nil, fmt.Errorf("decode plan %s: %w", doc.ID, err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func (s *planService) save(ctx context.Context, plan *domain.LearningPlan) error {
	doc, err := domain.EncodePlan(plan)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", plan.ID, err)
	}
	if err := s.plans.Save(ctx, doc); err != nil {
		return fmt.Errorf("save plan %s: %w", plan.ID, err)
	}
	return nil
}

// bindActivity attaches a content item to an activity, denormalising
// the metadata the plan needs to keep rendering after re-crawls.
func bindActivity(a *domain.Activity, item *domain.ContentItem) {
	a.ContentID = item.ID
	a.Title = item.Title
	a.Description = item.Description
	a.ContentTitle = item.Title
	a.ContentDescription = item.Description
	a.ContentType = item.ContentType
	a.DifficultyLevel = item.DifficultyLevel
	a.GradeLevel = item.GradeLevel
	a.ContentURL = item.URL
	if item.DurationMinutes > 0 {
		a.DurationMinutes = item.DurationMinutes
	}
}

// rotation hands out candidates: every candidate once before any
// repeats, then cycling in assignment order so the least recently
// assigned item is always the next reuse.
type rotation struct {
	fresh []*domain.ContentItem
	used  []*domain.ContentItem
}

func newRotation(candidates []*domain.ContentItem) *rotation {
	return &rotation{fresh: candidates}
}

func (r *rotation) next() *domain.ContentItem {
	if len(r.fresh) > 0 {
		item := r.fresh[0]
		r.fresh = r.fresh[1:]
		r.used = append(r.used, item)
		return item
	}
	if len(r.used) == 0 {
		return nil
	}
	item := r.used[0]
	r.used = append(r.used[1:], item)
	return item
}
