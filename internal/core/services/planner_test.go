package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven/mocks"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driving"
)

// stubRetrieval serves a fixed candidate list
type stubRetrieval struct {
	items []*domain.ContentItem
	err   error
}

func (s *stubRetrieval) Recommend(ctx context.Context, profile *domain.StudentProfile, subject string, limit int) (*domain.RetrievalResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	items := s.items
	if len(items) > limit {
		items = items[:limit]
	}
	return &domain.RetrievalResult{Items: items, Mode: domain.RetrievalModeSemantic}, nil
}

func (s *stubRetrieval) Search(ctx context.Context, req driving.SearchRequest) (*domain.RetrievalResult, error) {
	return &domain.RetrievalResult{Items: s.items, Mode: domain.RetrievalModeSemantic}, nil
}

func candidateItems(n int) []*domain.ContentItem {
	var items []*domain.ContentItem
	for i := 1; i <= n; i++ {
		url := fmt.Sprintf("https://example.edu/maths/%d", i)
		items = append(items, &domain.ContentItem{
			ID:              domain.ContentID(url),
			Title:           fmt.Sprintf("Maths lesson %d", i),
			Description:     fmt.Sprintf("Lesson %d description", i),
			ContentType:     domain.ContentTypeLesson,
			Subject:         "Maths",
			URL:             url,
			DifficultyLevel: domain.DifficultyIntermediate,
			GradeLevel:      []int{8},
			DurationMinutes: 25,
		})
	}
	return items
}

func buildReq(weeks, activities int, allowUnbound bool) driving.BuildPlanRequest {
	return driving.BuildPlanRequest{
		Profile: &domain.StudentProfile{
			StudentID:  "student-1",
			GradeLevel: 8,
		},
		Subject:      "Maths",
		Weeks:        weeks,
		Activities:   activities,
		AllowUnbound: allowUnbound,
	}
}

func TestBuildPlan_EveryActivityBound(t *testing.T) {
	plans := mocks.NewMockPlanStore()
	svc := NewPlanService(&stubRetrieval{items: candidateItems(20)}, plans, nil)

	plan, err := svc.BuildPlan(context.Background(), buildReq(4, 0, false))
	require.NoError(t, err)

	assert.Len(t, plan.Activities, 4*activitiesPerWeek)
	assert.Equal(t, domain.ActivityNotStarted, plan.Status)
	assert.Empty(t, plan.UnboundActivities())

	for i, a := range plan.Activities {
		assert.Equal(t, i+1, a.Order)
		assert.Equal(t, i/activitiesPerWeek+1, a.Week)
		assert.NotEmpty(t, a.ContentURL)
		assert.Equal(t, 25, a.DurationMinutes)
	}
}

func TestBuildPlan_RotationSpreadsRepeats(t *testing.T) {
	// 3 candidates, 5 activities: expect 1,2,3 then reuse of the least
	// recently assigned, never the same candidate twice in a row.
	plans := mocks.NewMockPlanStore()
	candidates := candidateItems(3)
	svc := NewPlanService(&stubRetrieval{items: candidates}, plans, nil)

	plan, err := svc.BuildPlan(context.Background(), buildReq(1, 5, false))
	require.NoError(t, err)
	require.Len(t, plan.Activities, 5)

	got := make([]string, 5)
	for i, a := range plan.Activities {
		got[i] = a.ContentID
	}

	assert.Equal(t, candidates[0].ID, got[0])
	assert.Equal(t, candidates[1].ID, got[1])
	assert.Equal(t, candidates[2].ID, got[2])
	assert.Equal(t, candidates[0].ID, got[3], "reuse starts with the least recently assigned")
	assert.Equal(t, candidates[1].ID, got[4])

	for i := 1; i < len(got); i++ {
		assert.NotEqual(t, got[i-1], got[i], "no candidate repeats back to back")
	}
}

func TestBuildPlan_NoContent(t *testing.T) {
	svc := NewPlanService(&stubRetrieval{}, mocks.NewMockPlanStore(), nil)

	_, err := svc.BuildPlan(context.Background(), buildReq(4, 0, false))
	assert.ErrorIs(t, err, domain.ErrContentUnavailable)
}

func TestBuildPlan_AllowUnbound(t *testing.T) {
	svc := NewPlanService(&stubRetrieval{}, mocks.NewMockPlanStore(), nil)

	plan, err := svc.BuildPlan(context.Background(), buildReq(2, 0, true))
	require.NoError(t, err)

	assert.Len(t, plan.Activities, 2*activitiesPerWeek)
	assert.Len(t, plan.UnboundActivities(), 2*activitiesPerWeek)
}

func TestBuildPlan_PersistsRoundTrip(t *testing.T) {
	plans := mocks.NewMockPlanStore()
	svc := NewPlanService(&stubRetrieval{items: candidateItems(20)}, plans, nil)

	ctx := context.Background()
	plan, err := svc.BuildPlan(ctx, buildReq(4, 0, false))
	require.NoError(t, err)

	loaded, err := svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)

	require.Len(t, loaded.Activities, len(plan.Activities))
	for i := range plan.Activities {
		assert.Equal(t, plan.Activities[i].ID, loaded.Activities[i].ID)
		assert.Equal(t, plan.Activities[i].Order, loaded.Activities[i].Order)
	}
}

func TestBuildPlan_InvalidInput(t *testing.T) {
	svc := NewPlanService(&stubRetrieval{items: candidateItems(5)}, mocks.NewMockPlanStore(), nil)
	ctx := context.Background()

	_, err := svc.BuildPlan(ctx, driving.BuildPlanRequest{Subject: "Maths"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.BuildPlan(ctx, driving.BuildPlanRequest{
		Profile: &domain.StudentProfile{StudentID: "s1"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUpdateActivityStatus(t *testing.T) {
	plans := mocks.NewMockPlanStore()
	svc := NewPlanService(&stubRetrieval{items: candidateItems(20)}, plans, nil)

	ctx := context.Background()
	plan, err := svc.BuildPlan(ctx, buildReq(1, 4, false))
	require.NoError(t, err)

	// Start one activity
	updated, err := svc.UpdateActivityStatus(ctx, driving.StatusUpdate{
		PlanID:     plan.ID,
		ActivityID: plan.Activities[0].ID,
		Status:     domain.ActivityInProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityInProgress, updated.Status)
	assert.Zero(t, updated.ProgressPercentage)

	// Complete it
	updated, err = svc.UpdateActivityStatus(ctx, driving.StatusUpdate{
		PlanID:     plan.ID,
		ActivityID: plan.Activities[0].ID,
		Status:     domain.ActivityCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, 25.0, updated.ProgressPercentage)
	assert.NotNil(t, updated.FindActivity(plan.Activities[0].ID).CompletedAt)

	// Complete the rest; the last one flips the plan to completed
	for _, a := range plan.Activities[1:] {
		updated, err = svc.UpdateActivityStatus(ctx, driving.StatusUpdate{
			PlanID:     plan.ID,
			ActivityID: a.ID,
			Status:     domain.ActivityCompleted,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, domain.ActivityCompleted, updated.Status)
	assert.Equal(t, 100.0, updated.ProgressPercentage)
}

func TestUpdateActivityStatus_InvalidTransition(t *testing.T) {
	plans := mocks.NewMockPlanStore()
	svc := NewPlanService(&stubRetrieval{items: candidateItems(20)}, plans, nil)

	ctx := context.Background()
	plan, err := svc.BuildPlan(ctx, buildReq(1, 3, false))
	require.NoError(t, err)

	_, err = svc.UpdateActivityStatus(ctx, driving.StatusUpdate{
		PlanID:     plan.ID,
		ActivityID: plan.Activities[0].ID,
		Status:     "abandoned",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// Failed transition never dirties the stored plan
	loaded, err := svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityNotStarted, loaded.Activities[0].Status)
}

func TestUpdateActivityStatus_ExplicitCompletionTime(t *testing.T) {
	plans := mocks.NewMockPlanStore()
	svc := NewPlanService(&stubRetrieval{items: candidateItems(20)}, plans, nil)

	ctx := context.Background()
	plan, err := svc.BuildPlan(ctx, buildReq(1, 3, false))
	require.NoError(t, err)

	completedAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	updated, err := svc.UpdateActivityStatus(ctx, driving.StatusUpdate{
		PlanID:      plan.ID,
		ActivityID:  plan.Activities[0].ID,
		Status:      domain.ActivityCompleted,
		CompletedAt: &completedAt,
	})
	require.NoError(t, err)

	got := updated.FindActivity(plan.Activities[0].ID).CompletedAt
	require.NotNil(t, got)
	assert.True(t, got.Equal(completedAt))
}

func TestUpdateActivityStatus_UnknownPlanOrActivity(t *testing.T) {
	plans := mocks.NewMockPlanStore()
	svc := NewPlanService(&stubRetrieval{items: candidateItems(20)}, plans, nil)
	ctx := context.Background()

	_, err := svc.UpdateActivityStatus(ctx, driving.StatusUpdate{
		PlanID: "missing", ActivityID: "a", Status: domain.ActivityCompleted,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	plan, err := svc.BuildPlan(ctx, buildReq(1, 3, false))
	require.NoError(t, err)

	_, err = svc.UpdateActivityStatus(ctx, driving.StatusUpdate{
		PlanID: plan.ID, ActivityID: "missing", Status: domain.ActivityCompleted,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListPlans_FiltersBySubject(t *testing.T) {
	plans := mocks.NewMockPlanStore()
	svc := NewPlanService(&stubRetrieval{items: candidateItems(20)}, plans, nil)

	ctx := context.Background()
	_, err := svc.BuildPlan(ctx, buildReq(1, 3, false))
	require.NoError(t, err)

	scienceReq := buildReq(1, 3, false)
	scienceReq.Subject = "Science"
	_, err = svc.BuildPlan(ctx, scienceReq)
	require.NoError(t, err)

	all, err := svc.ListPlans(ctx, "student-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	maths, err := svc.ListPlans(ctx, "student-1", "Maths")
	require.NoError(t, err)
	require.Len(t, maths, 1)
	assert.Equal(t, "Maths", maths[0].Subject)
}
