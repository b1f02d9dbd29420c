package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven/mocks"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driving"
	"github.com/chenxi840221/personalized-learning-copilot/internal/runtime"
)

type retrievalFixture struct {
	content   *mocks.MockContentStore
	embedding *mocks.MockEmbeddingService
	services  *runtime.Services
	retrieval driving.RetrievalService
}

func newRetrievalFixture() *retrievalFixture {
	f := &retrievalFixture{
		content:   mocks.NewMockContentStore(),
		embedding: mocks.NewMockEmbeddingService(),
	}
	f.services = runtime.NewServices(domain.NewRuntimeConfig("postgres"))
	f.services.SetEmbeddingService(f.embedding)
	f.retrieval = NewRetrievalService(f.content, f.services, nil)
	return f
}

func (f *retrievalFixture) seedItem(id int, subject string, grades []int, difficulty domain.DifficultyLevel, withEmbedding bool) *domain.ContentItem {
	url := fmt.Sprintf("https://example.edu/%s/%d", subject, id)
	item := &domain.ContentItem{
		ID:              domain.ContentID(url),
		Title:           fmt.Sprintf("%s item %d", subject, id),
		Subject:         subject,
		ContentType:     domain.ContentTypeArticle,
		URL:             url,
		DifficultyLevel: difficulty,
		GradeLevel:      grades,
		UpdatedAt:       time.Now().Add(-time.Duration(id) * time.Hour),
	}
	if withEmbedding {
		item.Embedding = make([]float32, domain.EmbeddingDimensions)
		for i := range item.Embedding {
			item.Embedding[i] = float32(id%7) / 7.0
		}
	}
	_ = f.content.Upsert(context.Background(), item)
	return item
}

func mathsProfile(grade int) *domain.StudentProfile {
	return &domain.StudentProfile{
		StudentID:          "student-1",
		GradeLevel:         grade,
		LearningStyle:      domain.LearningStyleVisual,
		SubjectsOfInterest: []string{"Maths"},
	}
}

func TestRecommend_SemanticWhenEmbeddingAvailable(t *testing.T) {
	f := newRetrievalFixture()
	for i := 1; i <= 5; i++ {
		f.seedItem(i, "Maths", []int{8}, domain.DifficultyIntermediate, true)
	}

	result, err := f.retrieval.Recommend(context.Background(), mathsProfile(8), "Maths", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Mode != domain.RetrievalModeSemantic {
		t.Errorf("expected semantic mode, got %s", result.Mode)
	}
	if len(result.Items) != 5 {
		t.Errorf("expected 5 items, got %d", len(result.Items))
	}
}

func TestRecommend_DegradesWhenEmbeddingDown(t *testing.T) {
	f := newRetrievalFixture()
	for i := 1; i <= 3; i++ {
		f.seedItem(i, "Maths", []int{8}, domain.DifficultyIntermediate, false)
	}
	f.embedding.SetUnavailable(errors.New("service down"))

	result, err := f.retrieval.Recommend(context.Background(), mathsProfile(8), "Maths", 10)
	if err != nil {
		t.Fatalf("degrade must not surface an error, got: %v", err)
	}

	if result.Mode != domain.RetrievalModeFilter {
		t.Errorf("expected filter mode, got %s", result.Mode)
	}
	if len(result.Items) != 3 {
		t.Errorf("expected 3 items, got %d", len(result.Items))
	}
}

func TestRecommend_NilEmbeddingService(t *testing.T) {
	f := newRetrievalFixture()
	f.services.SetEmbeddingService(nil)
	f.seedItem(1, "Maths", []int{8}, domain.DifficultyIntermediate, false)

	result, err := f.retrieval.Recommend(context.Background(), mathsProfile(8), "Maths", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Mode != domain.RetrievalModeFilter {
		t.Errorf("expected filter mode, got %s", result.Mode)
	}
}

func TestRecommend_GradeWindowWidens(t *testing.T) {
	f := newRetrievalFixture()
	// Only grade 7 content exists; a grade 8 student should still match
	f.seedItem(1, "Maths", []int{7}, domain.DifficultyIntermediate, true)

	result, err := f.retrieval.Recommend(context.Background(), mathsProfile(8), "Maths", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Errorf("expected adjacent-grade item, got %d items", len(result.Items))
	}
}

func TestRecommend_DifficultyBandBlocks(t *testing.T) {
	f := newRetrievalFixture()
	// Advanced content only; a grade 5 student gets beginner/intermediate
	f.seedItem(1, "Maths", []int{5}, domain.DifficultyAdvanced, true)
	f.seedItem(2, "Maths", []int{5}, domain.DifficultyBeginner, true)

	result, err := f.retrieval.Recommend(context.Background(), mathsProfile(5), "Maths", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
	if result.Items[0].DifficultyLevel != domain.DifficultyBeginner {
		t.Errorf("expected beginner item, got %s", result.Items[0].DifficultyLevel)
	}
}

func TestRecommend_WidensToSubjectWhenBandEmpty(t *testing.T) {
	f := newRetrievalFixture()
	// Content exists for the subject but outside the grade window
	f.seedItem(1, "Maths", []int{2}, domain.DifficultyBeginner, true)

	result, err := f.retrieval.Recommend(context.Background(), mathsProfile(10), "Maths", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Errorf("expected subject-wide fallback to find the item, got %d", len(result.Items))
	}
}

func TestRecommend_NilProfile(t *testing.T) {
	f := newRetrievalFixture()
	_, err := f.retrieval.Recommend(context.Background(), nil, "Maths", 10)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearch_FractionsWithEmbeddingDown(t *testing.T) {
	f := newRetrievalFixture()
	f.seedItem(1, "Maths", []int{8}, domain.DifficultyIntermediate, false)
	f.seedItem(2, "Maths", []int{8}, domain.DifficultyIntermediate, false)
	f.embedding.SetUnavailable(errors.New("embedding outage"))

	result, err := f.retrieval.Search(context.Background(), driving.SearchRequest{
		Query:   "fractions",
		Subject: "Maths",
	})
	if err != nil {
		t.Fatalf("expected degraded results, got error: %v", err)
	}

	if result.Mode != domain.RetrievalModeFilter {
		t.Errorf("expected filter mode, got %s", result.Mode)
	}
	if len(result.Items) != 2 {
		t.Errorf("expected 2 recency-ranked items, got %d", len(result.Items))
	}
	// Recency order: item 1 was updated more recently than item 2
	if len(result.Items) == 2 && !result.Items[0].UpdatedAt.After(result.Items[1].UpdatedAt) {
		t.Error("expected items ranked by recency")
	}
}

func TestSearch_DeduplicatesByContentID(t *testing.T) {
	f := newRetrievalFixture()
	a := f.seedItem(1, "Maths", []int{8}, domain.DifficultyIntermediate, true)
	b := f.seedItem(2, "Maths", []int{8}, domain.DifficultyIntermediate, true)
	// The store hands back item 1 twice, as overlapping query tiers can
	f.content.SetQueryResults(a, b, a)

	result, err := f.retrieval.Search(context.Background(), driving.SearchRequest{
		Query:   "fractions",
		Subject: "Maths",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Items) != 2 {
		t.Fatalf("expected 2 deduplicated items, got %d", len(result.Items))
	}
	seen := make(map[string]bool)
	for _, item := range result.Items {
		if seen[item.ID] {
			t.Errorf("content ID %s returned more than once", item.ID)
		}
		seen[item.ID] = true
	}
	// First occurrence wins the position
	if result.Items[0].ID != a.ID || result.Items[1].ID != b.ID {
		t.Error("expected original order preserved after dedup")
	}
}

func TestRecommend_DeduplicatesByContentID(t *testing.T) {
	f := newRetrievalFixture()
	a := f.seedItem(1, "Maths", []int{8}, domain.DifficultyIntermediate, true)
	f.content.SetQueryResults(a, a, a)

	result, err := f.retrieval.Recommend(context.Background(), mathsProfile(8), "Maths", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 deduplicated item, got %d", len(result.Items))
	}
	if result.Items[0].ID != a.ID {
		t.Errorf("expected item %s, got %s", a.ID, result.Items[0].ID)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	f := newRetrievalFixture()
	_, err := f.retrieval.Search(context.Background(), driving.SearchRequest{Query: "  "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearch_InvalidContentType(t *testing.T) {
	f := newRetrievalFixture()
	_, err := f.retrieval.Search(context.Background(), driving.SearchRequest{
		Query:       "fractions",
		ContentType: "podcast",
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGradeWindow(t *testing.T) {
	tests := []struct {
		grade int
		want  []int
	}{
		{0, nil},
		{1, []int{1, 2}},
		{8, []int{8, 7, 9}},
	}
	for _, tt := range tests {
		got := gradeWindow(tt.grade)
		if len(got) != len(tt.want) {
			t.Errorf("gradeWindow(%d) = %v, want %v", tt.grade, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("gradeWindow(%d) = %v, want %v", tt.grade, got, tt.want)
				break
			}
		}
	}
}

func TestDifficultyBand(t *testing.T) {
	tests := []struct {
		grade int
		want  []domain.DifficultyLevel
	}{
		{3, []domain.DifficultyLevel{domain.DifficultyBeginner, domain.DifficultyIntermediate}},
		{6, []domain.DifficultyLevel{domain.DifficultyBeginner, domain.DifficultyIntermediate}},
		{7, []domain.DifficultyLevel{domain.DifficultyIntermediate}},
		{9, []domain.DifficultyLevel{domain.DifficultyIntermediate}},
		{11, []domain.DifficultyLevel{domain.DifficultyIntermediate, domain.DifficultyAdvanced}},
	}
	for _, tt := range tests {
		got := difficultyBand(tt.grade)
		if len(got) != len(tt.want) {
			t.Errorf("difficultyBand(%d) = %v, want %v", tt.grade, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("difficultyBand(%d) = %v, want %v", tt.grade, got, tt.want)
				break
			}
		}
	}
}
