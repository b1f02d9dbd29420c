package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// PlanWeekSlots is the number of discrete weekly fields in the plan
// storage shape. Weeks beyond this land in the overflow slot.
const PlanWeekSlots = 8

// maxSlotBytes caps the encoded size of a single weekly slot. A week
// that does not fit is diverted whole to the overflow slot; losing
// activities is never an option.
const maxSlotBytes = 32 * 1024

// PlanDocument is the persisted shape of a LearningPlan: a fixed number
// of weekly slots plus one unbounded overflow slot. The union of all
// slots reconstructs the original ordered activity sequence losslessly,
// and no activity appears in more than one slot.
type PlanDocument struct {
	ID                 string         `json:"id"`
	StudentID          string         `json:"student_id"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Subject            string         `json:"subject"`
	Topics             []string       `json:"topics"`
	Status             ActivityStatus `json:"status"`
	ProgressPercentage float64        `json:"progress_percentage"`
	StartDate          time.Time      `json:"start_date"`
	EndDate            time.Time      `json:"end_date"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`

	// ActivitiesWeek[i] holds the JSON-encoded activities of week i+1.
	// Empty string means no activities stored in that slot.
	ActivitiesWeek [PlanWeekSlots]string `json:"activities_week"`

	// ActivitiesOverflow holds activities whose week exceeds the slot
	// count, or whose week could not be encoded into its slot, as an
	// ordered, independently-decodable JSON sequence of week groups.
	ActivitiesOverflow string `json:"activities_overflow,omitempty"`
}

// overflowGroup is one week's worth of activities in the overflow slot
type overflowGroup struct {
	Week       int         `json:"week"`
	Activities []*Activity `json:"activities"`
}

// EncodePlan serialises a LearningPlan into its storage shape.
// Activities for week w <= PlanWeekSlots go into slot w; later weeks
// are concatenated into the overflow slot. A week whose encoding fails
// or exceeds the slot budget also falls back to overflow.
func EncodePlan(plan *LearningPlan) (*PlanDocument, error) {
	doc := &PlanDocument{
		ID:                 plan.ID,
		StudentID:          plan.StudentID,
		Title:              plan.Title,
		Description:        plan.Description,
		Subject:            plan.Subject,
		Topics:             plan.Topics,
		Status:             plan.Status,
		ProgressPercentage: plan.ProgressPercentage,
		StartDate:          plan.StartDate,
		EndDate:            plan.EndDate,
		CreatedAt:          plan.CreatedAt,
		UpdatedAt:          plan.UpdatedAt,
	}

	// Group activities by week, preserving plan order within each week
	byWeek := make(map[int][]*Activity)
	var weeks []int
	for _, a := range plan.Activities {
		if a.Week < 1 {
			return nil, fmt.Errorf("%w: activity %s has week %d", ErrInvalidInput, a.ID, a.Week)
		}
		if _, seen := byWeek[a.Week]; !seen {
			weeks = append(weeks, a.Week)
		}
		byWeek[a.Week] = append(byWeek[a.Week], a)
	}
	sort.Ints(weeks)

	var overflow []overflowGroup
	for _, week := range weeks {
		group := byWeek[week]
		if week > PlanWeekSlots {
			overflow = append(overflow, overflowGroup{Week: week, Activities: group})
			continue
		}

		encoded, err := json.Marshal(group)
		if err != nil || len(encoded) > maxSlotBytes {
			// Slot unusable for this week; overflow keeps it lossless
			overflow = append(overflow, overflowGroup{Week: week, Activities: group})
			continue
		}
		doc.ActivitiesWeek[week-1] = string(encoded)
	}

	if len(overflow) > 0 {
		encoded, err := json.Marshal(overflow)
		if err != nil {
			return nil, fmt.Errorf("encode overflow activities: %w", err)
		}
		doc.ActivitiesOverflow = string(encoded)
	}

	return doc, nil
}

// DecodePlan reconstructs the LearningPlan from its storage shape:
// weekly slots concatenated in order, then decoded overflow groups,
// with the global activity order restored.
func DecodePlan(doc *PlanDocument) (*LearningPlan, error) {
	plan := &LearningPlan{
		ID:                 doc.ID,
		StudentID:          doc.StudentID,
		Title:              doc.Title,
		Description:        doc.Description,
		Subject:            doc.Subject,
		Topics:             doc.Topics,
		Status:             doc.Status,
		ProgressPercentage: doc.ProgressPercentage,
		StartDate:          doc.StartDate,
		EndDate:            doc.EndDate,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}

	var activities []*Activity
	for i, slot := range doc.ActivitiesWeek {
		if slot == "" {
			continue
		}
		var group []*Activity
		if err := json.Unmarshal([]byte(slot), &group); err != nil {
			return nil, fmt.Errorf("decode week %d activities: %w", i+1, err)
		}
		activities = append(activities, group...)
	}

	if doc.ActivitiesOverflow != "" {
		var groups []overflowGroup
		if err := json.Unmarshal([]byte(doc.ActivitiesOverflow), &groups); err != nil {
			return nil, fmt.Errorf("decode overflow activities: %w", err)
		}
		for _, g := range groups {
			activities = append(activities, g.Activities...)
		}
	}

	// Overflowed early weeks decode after the slot weeks; the global
	// order index puts everything back in sequence.
	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].Order < activities[j].Order
	})
	plan.Activities = activities

	return plan, nil
}
