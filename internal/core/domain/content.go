package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ContentType classifies a piece of educational content
type ContentType string

const (
	ContentTypeVideo       ContentType = "video"
	ContentTypeArticle     ContentType = "article"
	ContentTypeInteractive ContentType = "interactive"
	ContentTypeQuiz        ContentType = "quiz"
	ContentTypeWorksheet   ContentType = "worksheet"
	ContentTypeLesson      ContentType = "lesson"
	ContentTypeActivity    ContentType = "activity"
)

// ValidContentTypes lists all accepted content types
var ValidContentTypes = []ContentType{
	ContentTypeVideo,
	ContentTypeArticle,
	ContentTypeInteractive,
	ContentTypeQuiz,
	ContentTypeWorksheet,
	ContentTypeLesson,
	ContentTypeActivity,
}

// IsValid reports whether the content type is one of the declared values
func (t ContentType) IsValid() bool {
	for _, v := range ValidContentTypes {
		if t == v {
			return true
		}
	}
	return false
}

// DifficultyLevel indicates how demanding a content item is
type DifficultyLevel string

const (
	DifficultyBeginner     DifficultyLevel = "beginner"
	DifficultyIntermediate DifficultyLevel = "intermediate"
	DifficultyAdvanced     DifficultyLevel = "advanced"
)

// IsValid reports whether the difficulty level is one of the declared values
func (d DifficultyLevel) IsValid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// EmbeddingDimensions is the fixed vector size for the content index.
// A mismatch between this and the live index is a startup error, not
// something to paper over at query time.
const EmbeddingDimensions = 1536

// DefaultContentSource is the provenance label for crawled content
const DefaultContentSource = "ABC Education"

// ContentItem is a fully extracted, classified, embedded unit of
// educational content. Owned by the ContentStore; mutated only by
// extractor upserts (full replace, never a merge).
type ContentItem struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	ContentType     ContentType     `json:"content_type"`
	Subject         string          `json:"subject"`
	Topics          []string        `json:"topics"`
	URL             string          `json:"url"`
	Source          string          `json:"source"`
	DifficultyLevel DifficultyLevel `json:"difficulty_level"`
	GradeLevel      []int           `json:"grade_level"`
	DurationMinutes int             `json:"duration_minutes"`
	Keywords        []string        `json:"keywords"`
	Embedding       []float32       `json:"embedding,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// HasEmbedding reports whether the item participates in semantic search.
// Items stored before their embedding could be computed remain visible
// to exact-filter queries.
func (c *ContentItem) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// MatchesGrade reports whether the item covers the given grade level
func (c *ContentItem) MatchesGrade(grade int) bool {
	for _, g := range c.GradeLevel {
		if g == grade {
			return true
		}
	}
	return false
}

// ContentID derives the stable identifier for a content URL.
// Re-extracting the same URL always yields the same ID, so repeated
// runs overwrite rather than duplicate.
func ContentID(rawURL string) string {
	canonical := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(rawURL)), "/")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:16])
}
