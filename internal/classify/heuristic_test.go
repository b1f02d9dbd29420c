package classify

import (
	"testing"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
)

func classifyPage(title, description, url, subject string) *driven.Classification {
	return New().Classify(&driven.ResourcePage{
		Title:       title,
		Description: description,
		URL:         url,
	}, subject)
}

func TestClassify_ContentType(t *testing.T) {
	tests := []struct {
		name  string
		title string
		url   string
		want  domain.ContentType
	}{
		{"video in title", "Fractions video explainer", "https://example.edu/r/1", domain.ContentTypeVideo},
		{"quiz in url", "Test yourself", "https://example.edu/quiz/fractions", domain.ContentTypeQuiz},
		{"worksheet", "Printable worksheet on decimals", "https://example.edu/r/2", domain.ContentTypeWorksheet},
		{"interactive", "Interactive number line", "https://example.edu/r/3", domain.ContentTypeInteractive},
		{"lesson", "Full lesson on geometry", "https://example.edu/r/4", domain.ContentTypeLesson},
		{"activity", "Classroom activity ideas", "https://example.edu/r/5", domain.ContentTypeActivity},
		{"default article", "Understanding decimals", "https://example.edu/r/6", domain.ContentTypeArticle},
		{"video outranks lesson", "Video lesson on area", "https://example.edu/r/7", domain.ContentTypeVideo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyPage(tt.title, "", tt.url, "Maths")
			if got.ContentType != tt.want {
				t.Errorf("got %s, want %s", got.ContentType, tt.want)
			}
		})
	}
}

func TestClassify_ExplicitGrades(t *testing.T) {
	c := classifyPage("Fractions for Year 5 students", "", "https://example.edu/r/1", "Maths")
	if len(c.GradeLevel) != 1 || c.GradeLevel[0] != 5 {
		t.Errorf("expected [5], got %v", c.GradeLevel)
	}

	c = classifyPage("Algebra for years 7-9", "", "https://example.edu/r/2", "Maths")
	want := []int{7, 8, 9}
	if len(c.GradeLevel) != len(want) {
		t.Fatalf("expected %v, got %v", want, c.GradeLevel)
	}
	for i := range want {
		if c.GradeLevel[i] != want[i] {
			t.Errorf("expected %v, got %v", want, c.GradeLevel)
			break
		}
	}
}

func TestClassify_FoundationGrade(t *testing.T) {
	c := classifyPage("Counting for Foundation students", "", "https://example.edu/r/1", "Maths")
	if len(c.GradeLevel) != 1 || c.GradeLevel[0] != 0 {
		t.Errorf("expected foundation grade [0], got %v", c.GradeLevel)
	}
}

func TestClassify_DifficultyIndicators(t *testing.T) {
	tests := []struct {
		title          string
		wantDifficulty domain.DifficultyLevel
		wantGrades     []int
	}{
		{"An easy introduction to fractions", domain.DifficultyBeginner, []int{3, 4, 5}},
		{"Challenging problems in geometry", domain.DifficultyAdvanced, []int{8, 9, 10}},
		{"Fractions and decimals", domain.DifficultyIntermediate, []int{6, 7, 8}},
	}

	for _, tt := range tests {
		c := classifyPage(tt.title, "", "https://example.edu/r/1", "Science")
		if c.DifficultyLevel != tt.wantDifficulty {
			t.Errorf("%q: got %s, want %s", tt.title, c.DifficultyLevel, tt.wantDifficulty)
		}
		if len(c.GradeLevel) != len(tt.wantGrades) {
			t.Errorf("%q: got grades %v, want %v", tt.title, c.GradeLevel, tt.wantGrades)
		}
	}
}

func TestClassify_MathsTopicBumps(t *testing.T) {
	c := classifyPage("Solving linear equations", "", "https://example.edu/r/1", "Mathematics")
	if c.DifficultyLevel != domain.DifficultyIntermediate {
		t.Errorf("equations: got %s, want intermediate", c.DifficultyLevel)
	}
	if len(c.GradeLevel) != 3 || c.GradeLevel[0] != 7 {
		t.Errorf("equations: got grades %v, want [7 8 9]", c.GradeLevel)
	}

	c = classifyPage("Introduction to trigonometry", "", "https://example.edu/r/2", "Mathematics")
	if c.DifficultyLevel != domain.DifficultyAdvanced {
		t.Errorf("trigonometry: got %s, want advanced", c.DifficultyLevel)
	}

	// The bump is subject-scoped
	c = classifyPage("Chemical equations balanced", "", "https://example.edu/r/3", "Science")
	if len(c.GradeLevel) != 3 || c.GradeLevel[0] != 6 {
		t.Errorf("science equations: got grades %v, want default band", c.GradeLevel)
	}
}

func TestClassify_ExplicitGradesWinOverDefaults(t *testing.T) {
	c := classifyPage("Advanced algebra for year 10", "", "https://example.edu/r/1", "Mathematics")
	if len(c.GradeLevel) != 1 || c.GradeLevel[0] != 10 {
		t.Errorf("expected explicit [10], got %v", c.GradeLevel)
	}
}

func TestClassify_DurationDefaults(t *testing.T) {
	tests := []struct {
		title string
		want  int
	}{
		{"A video about space", 20},
		{"Interactive solar system", 30},
		{"Space quiz", 15},
		{"Planets worksheet", 45},
		{"Lesson on gravity", 60},
		{"Stargazing activity", 40},
		{"The planets", 25},
	}
	for _, tt := range tests {
		c := classifyPage(tt.title, "", "https://example.edu/r/1", "Science")
		if c.DurationMinutes != tt.want {
			t.Errorf("%q: got %d minutes, want %d", tt.title, c.DurationMinutes, tt.want)
		}
	}
}

func TestClassify_Keywords(t *testing.T) {
	c := classifyPage(
		"Understanding fractions",
		"Fractions explained with clear examples and practice questions about fractions",
		"https://example.edu/r/1",
		"Maths",
	)

	if len(c.Keywords) == 0 {
		t.Fatal("expected keywords")
	}
	if c.Keywords[0] != "understanding" {
		t.Errorf("expected first-occurrence order, got %v", c.Keywords)
	}

	seen := make(map[string]bool)
	for _, k := range c.Keywords {
		if len(k) <= 3 {
			t.Errorf("short word leaked: %q", k)
		}
		if seen[k] {
			t.Errorf("duplicate keyword: %q", k)
		}
		seen[k] = true
	}
	if len(c.Keywords) > 10 {
		t.Errorf("expected at most 10 keywords, got %d", len(c.Keywords))
	}
}

func TestClassify_Deterministic(t *testing.T) {
	page := &driven.ResourcePage{
		Title:       "Advanced algebra quiz for years 9-10",
		Description: "Challenging equation practice",
		URL:         "https://example.edu/r/1",
	}
	h := New()
	first := h.Classify(page, "Mathematics")
	for i := 0; i < 5; i++ {
		again := h.Classify(page, "Mathematics")
		if again.ContentType != first.ContentType ||
			again.DifficultyLevel != first.DifficultyLevel ||
			len(again.GradeLevel) != len(first.GradeLevel) ||
			len(again.Keywords) != len(first.Keywords) {
			t.Fatal("classification must be deterministic")
		}
	}
}
