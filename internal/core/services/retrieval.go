package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driving"
	"github.com/chenxi840221/personalized-learning-copilot/internal/runtime"
)

// Ensure retrievalService implements RetrievalService
var _ driving.RetrievalService = (*retrievalService)(nil)

// retrievalService implements the RetrievalService interface.
// Strategies are tried in capability order: semantic first when an
// embedding service is live, then exact filters ranked by recency.
// The first strategy that yields results wins.
type retrievalService struct {
	content  driven.ContentStore
	services *runtime.Services
	logger   *slog.Logger
}

// NewRetrievalService creates a new RetrievalService.
// The embedding service is accessed dynamically via runtime.Services so
// outages degrade queries rather than failing them.
func NewRetrievalService(
	content driven.ContentStore,
	services *runtime.Services,
	logger *slog.Logger,
) driving.RetrievalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &retrievalService{
		content:  content,
		services: services,
		logger:   logger,
	}
}

// Recommend returns content matched to a student profile.
func (s *retrievalService) Recommend(ctx context.Context, profile *domain.StudentProfile, subject string, limit int) (*domain.RetrievalResult, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: profile is required", domain.ErrInvalidInput)
	}
	limit = clampTopK(limit)

	filters := domain.ContentFilters{
		Subject:     subject,
		GradeLevels: gradeWindow(profile.GradeLevel),
		Difficulty:  difficultyBand(profile.GradeLevel),
	}

	query := domain.ContentQuery{
		Filters: filters,
		Text:    profileQueryText(profile, subject),
		TopK:    limit,
	}

	result, err := s.run(ctx, query)
	if err != nil {
		return nil, err
	}

	// A grade-banded query that comes back empty widens to the subject
	// alone before giving up; an empty recommendation helps nobody.
	if len(result.Items) == 0 && (len(filters.GradeLevels) > 0 || len(filters.Difficulty) > 0) {
		query.Filters = domain.ContentFilters{Subject: subject}
		result, err = s.run(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// Search embeds the query text and runs a similarity query.
func (s *retrievalService) Search(ctx context.Context, req driving.SearchRequest) (*domain.RetrievalResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	if req.ContentType != "" && !req.ContentType.IsValid() {
		return nil, fmt.Errorf("%w: unknown content type %q", domain.ErrInvalidInput, req.ContentType)
	}

	query := domain.ContentQuery{
		Filters: domain.ContentFilters{
			Subject:     req.Subject,
			ContentType: req.ContentType,
		},
		Text: req.Query,
		TopK: clampTopK(req.Limit),
	}

	return s.run(ctx, query)
}

// run executes the strategy ladder for one query and dedupes the
// result by content ID.
func (s *retrievalService) run(ctx context.Context, query domain.ContentQuery) (*domain.RetrievalResult, error) {
	mode := domain.RetrievalModeFilter

	if query.Text != "" {
		if embedding, ok := s.embedQuery(ctx, query.Text); ok {
			query.Embedding = embedding
			mode = domain.RetrievalModeSemantic
		}
	}

	items, err := s.content.Query(ctx, query)
	if err != nil {
		if mode == domain.RetrievalModeSemantic {
			// Semantic tier failed at the store; drop to filter tier
			s.logger.Warn("semantic query failed, falling back to filters", "error", err)
			query.Embedding = nil
			mode = domain.RetrievalModeFilter
			items, err = s.content.Query(ctx, query)
		}
		if err != nil {
			return nil, fmt.Errorf("content query: %w", err)
		}
	}

	return &domain.RetrievalResult{
		Items: dedupeByID(items),
		Mode:  mode,
	}, nil
}

// embedQuery attempts to embed the query text. Any failure means the
// caller degrades to filter mode; the error itself is not surfaced.
func (s *retrievalService) embedQuery(ctx context.Context, text string) ([]float32, bool) {
	svc := s.services.EmbeddingService()
	if svc == nil {
		return nil, false
	}
	embedding, err := svc.EmbedQuery(ctx, text)
	if err != nil {
		s.logger.Warn("query embedding failed, degrading to filter mode", "error", err)
		return nil, false
	}
	if len(embedding) == 0 {
		return nil, false
	}
	return embedding, true
}

// profileQueryText renders a student profile as embedding query text
func profileQueryText(profile *domain.StudentProfile, subject string) string {
	var b strings.Builder
	if subject != "" {
		b.WriteString(subject)
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "for grade %d students", profile.GradeLevel)
	if style := profile.Style(); style != domain.LearningStyleMixed {
		fmt.Fprintf(&b, " who prefer %s learning", strings.ReplaceAll(string(style), "_", " "))
	}
	if len(profile.SubjectsOfInterest) > 0 {
		b.WriteString(" interested in ")
		b.WriteString(strings.Join(profile.SubjectsOfInterest, ", "))
	}
	return b.String()
}

// gradeWindow widens a single grade to the adjacent grades so thin
// grade coverage in the index still yields candidates.
func gradeWindow(grade int) []int {
	if grade <= 0 {
		return nil
	}
	window := []int{grade}
	if grade > 1 {
		window = append(window, grade-1)
	}
	window = append(window, grade+1)
	return window
}

// difficultyBand maps a grade to the difficulty levels appropriate for it
func difficultyBand(grade int) []domain.DifficultyLevel {
	switch {
	case grade <= 0:
		return nil
	case grade <= 6:
		return []domain.DifficultyLevel{domain.DifficultyBeginner, domain.DifficultyIntermediate}
	case grade <= 9:
		return []domain.DifficultyLevel{domain.DifficultyIntermediate}
	default:
		return []domain.DifficultyLevel{domain.DifficultyIntermediate, domain.DifficultyAdvanced}
	}
}

func clampTopK(limit int) int {
	if limit <= 0 {
		return domain.DefaultTopK
	}
	if limit > domain.MaxTopK {
		return domain.MaxTopK
	}
	return limit
}

func dedupeByID(items []*domain.ContentItem) []*domain.ContentItem {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		out = append(out, item)
	}
	return out
}
