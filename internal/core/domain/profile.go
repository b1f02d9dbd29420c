package domain

// LearningStyle describes how a student prefers to consume content
type LearningStyle string

const (
	LearningStyleVisual      LearningStyle = "visual"
	LearningStyleAuditory    LearningStyle = "auditory"
	LearningStyleReading     LearningStyle = "reading_writing"
	LearningStyleKinesthetic LearningStyle = "kinesthetic"
	LearningStyleMixed       LearningStyle = "mixed"
)

// StudentProfile is the read-only caller-supplied input to retrieval
// and plan assembly. This core never mutates it.
type StudentProfile struct {
	StudentID          string        `json:"student_id"`
	FullName           string        `json:"full_name,omitempty"`
	GradeLevel         int           `json:"grade_level"`
	LearningStyle      LearningStyle `json:"learning_style"`
	SubjectsOfInterest []string      `json:"subjects_of_interest"`
}

// Style returns the learning style, defaulting to mixed when unset
func (p *StudentProfile) Style() LearningStyle {
	if p.LearningStyle == "" {
		return LearningStyleMixed
	}
	return p.LearningStyle
}
