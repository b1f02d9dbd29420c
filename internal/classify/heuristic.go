// Package classify derives content metadata from fetched resource
// pages using keyword and URL heuristics. It is the default Classifier
// implementation; callers depend only on the driven.Classifier port.
package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
)

// Ensure Heuristic implements Classifier
var _ driven.Classifier = (*Heuristic)(nil)

// Heuristic classifies resource pages with deterministic keyword rules.
// Stateless and safe for concurrent use.
type Heuristic struct{}

// New creates a new heuristic classifier
func New() *Heuristic {
	return &Heuristic{}
}

// typeIndicators maps a keyword to a content type; first match in
// order wins so "video" outranks "lesson" when both appear.
var typeIndicators = []struct {
	keyword string
	ctype   domain.ContentType
}{
	{"video", domain.ContentTypeVideo},
	{"quiz", domain.ContentTypeQuiz},
	{"worksheet", domain.ContentTypeWorksheet},
	{"interactive", domain.ContentTypeInteractive},
	{"lesson", domain.ContentTypeLesson},
	{"activity", domain.ContentTypeActivity},
}

var (
	gradeSingleRe = regexp.MustCompile(`(?:year|grade) (\d{1,2})`)
	gradeRangeRe  = regexp.MustCompile(`(?:years?|grades?) (\d{1,2})-(\d{1,2})`)
)

var beginnerTerms = []string{"basic", "beginner", "easy", "introduction", "start"}
var advancedTerms = []string{"advanced", "complex", "difficult", "challenging"}
var foundationTerms = []string{"foundation", "prep", "kindergarten"}

// typeDurations are the default duration estimates per content type,
// used when the page carries no explicit duration.
var typeDurations = map[domain.ContentType]int{
	domain.ContentTypeVideo:       20,
	domain.ContentTypeInteractive: 30,
	domain.ContentTypeQuiz:        15,
	domain.ContentTypeWorksheet:   45,
	domain.ContentTypeLesson:      60,
	domain.ContentTypeActivity:    40,
	domain.ContentTypeArticle:     25,
}

// Classify determines type, difficulty, grades, keywords and a
// duration estimate for a resource page.
func (h *Heuristic) Classify(page *driven.ResourcePage, subject string) *driven.Classification {
	text := strings.ToLower(page.Title + " " + page.Description)

	ctype := contentType(text, page.URL)
	difficulty, grades := difficultyAndGrades(text, subject)

	return &driven.Classification{
		ContentType:     ctype,
		DifficultyLevel: difficulty,
		GradeLevel:      grades,
		Keywords:        keywords(page.Title, page.Description),
		DurationMinutes: typeDurations[ctype],
	}
}

// contentType matches indicator keywords against the page text and URL
func contentType(text, url string) domain.ContentType {
	urlLower := strings.ToLower(url)
	for _, ind := range typeIndicators {
		if strings.Contains(text, ind.keyword) || strings.Contains(urlLower, ind.keyword) {
			return ind.ctype
		}
	}
	return domain.ContentTypeArticle
}

// difficultyAndGrades derives difficulty and grade coverage from the
// page text. Explicit year/grade mentions win; otherwise each
// difficulty carries a default grade band.
func difficultyAndGrades(text, subject string) (domain.DifficultyLevel, []int) {
	extracted := extractGrades(text)

	var difficulty domain.DifficultyLevel
	var fallback []int

	switch {
	case containsAny(text, beginnerTerms):
		difficulty = domain.DifficultyBeginner
		fallback = []int{3, 4, 5}
	case containsAny(text, advancedTerms):
		difficulty = domain.DifficultyAdvanced
		fallback = []int{8, 9, 10}
	default:
		difficulty = domain.DifficultyIntermediate
		fallback = []int{6, 7, 8}
	}

	// Maths topics carry strong level signals of their own
	if strings.Contains(strings.ToLower(subject), "math") {
		if strings.Contains(text, "algebra") || strings.Contains(text, "equation") {
			difficulty = domain.DifficultyIntermediate
			fallback = []int{7, 8, 9}
		} else if strings.Contains(text, "calculus") || strings.Contains(text, "trigonometry") {
			difficulty = domain.DifficultyAdvanced
			fallback = []int{9, 10, 11}
		}
	}

	if len(extracted) > 0 {
		return difficulty, extracted
	}
	return difficulty, fallback
}

// extractGrades pulls explicit year/grade mentions out of the text.
// Grade 0 stands for Foundation.
func extractGrades(text string) []int {
	seen := make(map[int]bool)

	for _, m := range gradeRangeRe.FindAllStringSubmatch(text, -1) {
		start, end := atoi(m[1]), atoi(m[2])
		for g := start; g <= end && g-start < 13; g++ {
			seen[g] = true
		}
	}
	for _, m := range gradeSingleRe.FindAllStringSubmatch(text, -1) {
		seen[atoi(m[1])] = true
	}
	if containsAny(text, foundationTerms) {
		seen[0] = true
	}

	if len(seen) == 0 {
		return nil
	}
	grades := make([]int, 0, len(seen))
	for g := range seen {
		grades = append(grades, g)
	}
	sort.Ints(grades)
	return grades
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "with": true, "by": true, "about": true, "as": true,
}

// keywords extracts up to 10 distinctive words from title and
// description, in first-occurrence order.
func keywords(title, description string) []string {
	text := strings.ToLower(title + " " + description)

	var out []string
	seen := make(map[string]bool)
	for _, word := range wordRe.FindAllString(text, -1) {
		if len(word) <= 3 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
		if len(out) == 10 {
			break
		}
	}
	return out
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
