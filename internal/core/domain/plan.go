package domain

import (
	"fmt"
	"time"
)

// ActivityStatus tracks progress through a single activity
type ActivityStatus string

const (
	ActivityNotStarted ActivityStatus = "not_started"
	ActivityInProgress ActivityStatus = "in_progress"
	ActivityCompleted  ActivityStatus = "completed"
)

// IsValid reports whether the status is one of the declared values
func (s ActivityStatus) IsValid() bool {
	switch s {
	case ActivityNotStarted, ActivityInProgress, ActivityCompleted:
		return true
	}
	return false
}

// Activity is one scheduled unit of a learning plan. At finalisation
// every activity references exactly one content item; an unbound
// activity is an invariant violation, not a valid terminal state.
type Activity struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	ContentID       string         `json:"content_id"`
	Week            int            `json:"week"`  // 1-based week within the plan
	Order           int            `json:"order"` // 1-based position within the plan
	DurationMinutes int            `json:"duration_minutes"`
	Status          ActivityStatus `json:"status"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`

	// Denormalised content metadata, attached at assembly time so the
	// plan keeps rendering even if the content item is later re-crawled.
	ContentTitle       string          `json:"content_title,omitempty"`
	ContentDescription string          `json:"content_description,omitempty"`
	ContentType        ContentType     `json:"content_type,omitempty"`
	DifficultyLevel    DifficultyLevel `json:"difficulty_level,omitempty"`
	GradeLevel         []int           `json:"grade_level,omitempty"`
	ContentURL         string          `json:"content_url,omitempty"`
}

// Transition applies a status change to the activity.
// Allowed: not_started -> in_progress -> completed, the direct skip
// not_started -> completed, and reopening from completed (which clears
// the completion timestamp). An in-progress activity cannot go back to
// not_started.
func (a *Activity) Transition(to ActivityStatus, completedAt *time.Time, now time.Time) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, to)
	}
	if to == a.Status {
		return nil
	}

	switch {
	case a.Status == ActivityNotStarted && to == ActivityInProgress:
	case a.Status == ActivityNotStarted && to == ActivityCompleted:
	case a.Status == ActivityInProgress && to == ActivityCompleted:
	case a.Status == ActivityCompleted && to == ActivityInProgress:
	case a.Status == ActivityCompleted && to == ActivityNotStarted:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}

	a.Status = to
	if to == ActivityCompleted {
		if completedAt != nil {
			a.CompletedAt = completedAt
		} else {
			ts := now
			a.CompletedAt = &ts
		}
	} else {
		a.CompletedAt = nil
	}
	return nil
}

// LearningPlan is an ordered sequence of activities for one subject.
// Status and progress are pure functions of the activity statuses.
type LearningPlan struct {
	ID                 string         `json:"id"`
	StudentID          string         `json:"student_id"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Subject            string         `json:"subject"`
	Topics             []string       `json:"topics"`
	Activities         []*Activity    `json:"activities"`
	Status             ActivityStatus `json:"status"`
	ProgressPercentage float64        `json:"progress_percentage"`
	StartDate          time.Time      `json:"start_date"`
	EndDate            time.Time      `json:"end_date"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Recompute derives plan status and progress from the activities.
// Runs synchronously on every activity transition.
func (p *LearningPlan) Recompute() {
	total := len(p.Activities)
	if total == 0 {
		p.Status = ActivityNotStarted
		p.ProgressPercentage = 0
		return
	}

	completed := 0
	started := false
	for _, a := range p.Activities {
		switch a.Status {
		case ActivityCompleted:
			completed++
		case ActivityInProgress:
			started = true
		}
	}

	p.ProgressPercentage = float64(completed) / float64(total) * 100

	switch {
	case completed == total:
		p.Status = ActivityCompleted
	case completed > 0 || started:
		p.Status = ActivityInProgress
	default:
		p.Status = ActivityNotStarted
	}
}

// FindActivity returns the activity with the given ID, or nil
func (p *LearningPlan) FindActivity(activityID string) *Activity {
	for _, a := range p.Activities {
		if a.ID == activityID {
			return a
		}
	}
	return nil
}

// UnboundActivities returns activities without a content binding
func (p *LearningPlan) UnboundActivities() []*Activity {
	var unbound []*Activity
	for _, a := range p.Activities {
		if a.ContentID == "" {
			unbound = append(unbound, a)
		}
	}
	return unbound
}
