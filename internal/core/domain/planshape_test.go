package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildActivities(weeks int, perWeek int) []*Activity {
	var activities []*Activity
	order := 1
	for w := 1; w <= weeks; w++ {
		for i := 0; i < perWeek; i++ {
			activities = append(activities, &Activity{
				ID:        GenerateID(),
				Title:     "Activity",
				ContentID: "content-1",
				Week:      w,
				Order:     order,
				Status:    ActivityNotStarted,
			})
			order++
		}
	}
	return activities
}

func TestPlanCodec_RoundTrip(t *testing.T) {
	plan := &LearningPlan{
		ID:         "plan-1",
		StudentID:  "student-1",
		Subject:    "Mathematics",
		Activities: buildActivities(4, 3),
	}

	doc, err := EncodePlan(plan)
	require.NoError(t, err)

	decoded, err := DecodePlan(doc)
	require.NoError(t, err)

	require.Len(t, decoded.Activities, len(plan.Activities))
	for i, a := range plan.Activities {
		assert.Equal(t, a.ID, decoded.Activities[i].ID)
		assert.Equal(t, a.Week, decoded.Activities[i].Week)
		assert.Equal(t, a.Order, decoded.Activities[i].Order)
	}
}

func TestPlanCodec_OverflowWeeks(t *testing.T) {
	// Weeks 1-10 with W=8: weeks 9 and 10 must land fully in overflow
	plan := &LearningPlan{ID: "plan-1", Activities: buildActivities(10, 2)}

	doc, err := EncodePlan(plan)
	require.NoError(t, err)

	for w := 0; w < PlanWeekSlots; w++ {
		assert.NotEmpty(t, doc.ActivitiesWeek[w], "week %d slot should be populated", w+1)
	}
	require.NotEmpty(t, doc.ActivitiesOverflow)

	decoded, err := DecodePlan(doc)
	require.NoError(t, err)
	require.Len(t, decoded.Activities, 20)

	// Order preserved across the slot/overflow boundary
	for i, a := range decoded.Activities {
		assert.Equal(t, i+1, a.Order)
	}
	assert.Equal(t, 9, decoded.Activities[16].Week)
	assert.Equal(t, 10, decoded.Activities[18].Week)
}

func TestPlanCodec_NoActivityInTwoSlots(t *testing.T) {
	plan := &LearningPlan{ID: "plan-1", Activities: buildActivities(10, 1)}

	doc, err := EncodePlan(plan)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, slot := range doc.ActivitiesWeek {
		for _, a := range plan.Activities {
			if slot != "" && strings.Contains(slot, a.ID) {
				seen[a.ID]++
			}
		}
	}
	for _, a := range plan.Activities {
		if doc.ActivitiesOverflow != "" && strings.Contains(doc.ActivitiesOverflow, a.ID) {
			seen[a.ID]++
		}
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "activity %s appears in %d slots", id, count)
	}
	assert.Len(t, seen, len(plan.Activities))
}

func TestPlanCodec_OversizedWeekFallsBackToOverflow(t *testing.T) {
	// A single week too large for its slot must divert to overflow
	// rather than dropping activities.
	big := buildActivities(1, 1)
	big[0].Description = strings.Repeat("x", maxSlotBytes)

	plan := &LearningPlan{ID: "plan-1", Activities: big}
	doc, err := EncodePlan(plan)
	require.NoError(t, err)

	assert.Empty(t, doc.ActivitiesWeek[0])
	require.NotEmpty(t, doc.ActivitiesOverflow)

	decoded, err := DecodePlan(doc)
	require.NoError(t, err)
	require.Len(t, decoded.Activities, 1)
	assert.Equal(t, big[0].ID, decoded.Activities[0].ID)
	assert.Equal(t, big[0].Description, decoded.Activities[0].Description)
}

func TestPlanCodec_RejectsInvalidWeek(t *testing.T) {
	plan := &LearningPlan{
		Activities: []*Activity{{ID: "a1", Week: 0, Order: 1}},
	}
	_, err := EncodePlan(plan)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
