package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven/mocks"
	"github.com/chenxi840221/personalized-learning-copilot/internal/runtime"
)

type extractorFixture struct {
	source    *mocks.MockSubjectSource
	catalog   *mocks.MockCatalogStore
	content   *mocks.MockContentStore
	embedding *mocks.MockEmbeddingService
	services  *runtime.Services
	extractor *ExtractOrchestrator
}

func newExtractorFixture(t *testing.T) *extractorFixture {
	t.Helper()

	f := &extractorFixture{
		source:    mocks.NewMockSubjectSource(),
		catalog:   mocks.NewMockCatalogStore(),
		content:   mocks.NewMockContentStore(),
		embedding: mocks.NewMockEmbeddingService(),
	}
	f.services = runtime.NewServices(domain.NewRuntimeConfig("postgres"))
	f.services.SetEmbeddingService(f.embedding)

	f.extractor = NewExtractOrchestrator(ExtractOrchestratorConfig{
		Source:     f.source,
		Catalog:    f.catalog,
		Content:    f.content,
		Classifier: mocks.NewMockClassifier(),
		Services:   f.services,
	})
	return f
}

func (f *extractorFixture) addPending(t *testing.T, subject string, urls ...string) {
	t.Helper()
	var entries []*domain.ResourceCatalogEntry
	for _, u := range urls {
		entries = append(entries, &domain.ResourceCatalogEntry{
			URL:          u,
			Subject:      subject,
			DiscoveredAt: time.Now(),
		})
		f.source.AddResource(&driven.ResourcePage{
			URL:         u,
			Title:       "Title for " + u,
			Description: "Description for " + u,
		})
	}
	_, err := f.catalog.SaveEntries(context.Background(), entries)
	require.NoError(t, err)
}

func TestExtractSubject_IndexesPendingEntries(t *testing.T) {
	f := newExtractorFixture(t)
	f.addPending(t, "Maths", "https://example.edu/fractions", "https://example.edu/decimals")

	result, err := f.extractor.ExtractSubject(context.Background(), "Maths")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Indexed)
	assert.Zero(t, result.WithoutEmbedding)
	assert.Empty(t, result.Failures)

	count, _ := f.content.Count(context.Background(), "Maths")
	assert.Equal(t, 2, count)

	// Item carries the denormalised source metadata
	item, err := f.content.Get(context.Background(), domain.ContentID("https://example.edu/fractions"))
	require.NoError(t, err)
	assert.Equal(t, "Title for https://example.edu/fractions", item.Title)
	assert.Equal(t, domain.DefaultContentSource, item.Source)
	assert.True(t, item.HasEmbedding())

	// Entries stamped as extracted
	pending, _ := f.catalog.CountPending(context.Background(), "Maths")
	assert.Zero(t, pending)
}

func TestExtractSubject_ReextractionOverwrites(t *testing.T) {
	f := newExtractorFixture(t)
	f.addPending(t, "Maths", "https://example.edu/fractions")

	ctx := context.Background()
	_, err := f.extractor.ExtractSubject(ctx, "Maths")
	require.NoError(t, err)

	// Re-discover and re-extract the same URL
	f.addPending(t, "Maths", "https://example.edu/fractions")
	_, err = f.extractor.ExtractSubject(ctx, "Maths")
	require.NoError(t, err)

	count, _ := f.content.Count(ctx, "Maths")
	assert.Equal(t, 1, count, "same URL must never duplicate")
}

func TestExtractSubject_FetchFailureStaysPending(t *testing.T) {
	f := newExtractorFixture(t)
	f.addPending(t, "Maths", "https://example.edu/good", "https://example.edu/bad")
	f.source.SetFetchError("https://example.edu/bad", errors.New("connection reset"))

	result, err := f.extractor.ExtractSubject(context.Background(), "Maths")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Indexed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "fetch", result.Failures[0].Stage)
	assert.Equal(t, "https://example.edu/bad", result.Failures[0].URL)

	// The failed entry is retried on the next pass
	pending, _ := f.catalog.CountPending(context.Background(), "Maths")
	assert.Equal(t, 1, pending)
}

func TestExtractSubject_EmbeddingFailureStillIndexes(t *testing.T) {
	f := newExtractorFixture(t)
	f.addPending(t, "Maths", "https://example.edu/fractions")
	f.embedding.SetUnavailable(errors.New("rate limited"))

	result, err := f.extractor.ExtractSubject(context.Background(), "Maths")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 1, result.WithoutEmbedding)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "embed", result.Failures[0].Stage)

	// Indexed, findable by filters, just without a vector
	item, err := f.content.Get(context.Background(), domain.ContentID("https://example.edu/fractions"))
	require.NoError(t, err)
	assert.False(t, item.HasEmbedding())

	// Extraction is done for this entry; only the embedding is retried
	pending, _ := f.catalog.CountPending(context.Background(), "Maths")
	assert.Zero(t, pending)
}

func TestExtractSubject_NoEmbeddingService(t *testing.T) {
	f := newExtractorFixture(t)
	f.services.SetEmbeddingService(nil)
	f.addPending(t, "Maths", "https://example.edu/fractions")

	result, err := f.extractor.ExtractSubject(context.Background(), "Maths")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 1, result.WithoutEmbedding)
	// A missing service is expected degraded operation, not a failure
	assert.Empty(t, result.Failures)
}

func TestExtractSubject_BodyBacksMissingDescription(t *testing.T) {
	f := newExtractorFixture(t)
	ctx := context.Background()

	_, err := f.catalog.SaveEntries(ctx, []*domain.ResourceCatalogEntry{{
		URL:          "https://example.edu/fractions-intro",
		Subject:      "Maths",
		DiscoveredAt: time.Now(),
	}})
	require.NoError(t, err)
	f.source.AddResource(&driven.ResourcePage{
		URL:   "https://example.edu/fractions-intro",
		Title: "Fractions intro",
		Body:  "Fractions name equal parts of a whole. This lesson covers halves, quarters and eighths with worked examples.",
	})

	result, err := f.extractor.ExtractSubject(ctx, "Maths")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)

	item, err := f.content.Get(ctx, domain.ContentID("https://example.edu/fractions-intro"))
	require.NoError(t, err)
	assert.Contains(t, item.Description, "equal parts of a whole")
	// The excerpt reaches the embedding through the stored description
	assert.Contains(t, embeddingText(item), "equal parts of a whole")
	assert.True(t, item.HasEmbedding())
}

func TestExtractSubject_MetaDescriptionPreferredOverBody(t *testing.T) {
	f := newExtractorFixture(t)
	ctx := context.Background()

	_, err := f.catalog.SaveEntries(ctx, []*domain.ResourceCatalogEntry{{
		URL:          "https://example.edu/decimals",
		Subject:      "Maths",
		DiscoveredAt: time.Now(),
	}})
	require.NoError(t, err)
	f.source.AddResource(&driven.ResourcePage{
		URL:         "https://example.edu/decimals",
		Title:       "Decimals",
		Description: "A lesson on decimal place value.",
		Body:        "Navigation text and other page noise.",
	})

	_, err = f.extractor.ExtractSubject(ctx, "Maths")
	require.NoError(t, err)

	item, err := f.content.Get(ctx, domain.ContentID("https://example.edu/decimals"))
	require.NoError(t, err)
	assert.Equal(t, "A lesson on decimal place value.", item.Description)
}

func TestBodyExcerpt_CapsAtWordBoundary(t *testing.T) {
	long := strings.Repeat("fraction practice ", 60)
	got := bodyExcerpt(long)

	assert.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), bodyExcerptLimit)
	assert.False(t, strings.HasSuffix(got, " "))
	// Cut lands on a word boundary, never mid-word
	assert.True(t, strings.HasSuffix(got, "fraction") || strings.HasSuffix(got, "practice"))

	short := "fits entirely"
	assert.Equal(t, short, bodyExcerpt(short))
}

func TestRefreshEmbeddings(t *testing.T) {
	f := newExtractorFixture(t)
	f.addPending(t, "Maths", "https://example.edu/a", "https://example.edu/b")
	f.embedding.SetUnavailable(errors.New("outage"))

	ctx := context.Background()
	_, err := f.extractor.ExtractSubject(ctx, "Maths")
	require.NoError(t, err)

	missing, _ := f.content.ListMissingEmbeddings(ctx, 0)
	require.Len(t, missing, 2)

	// Service recovers
	f.embedding.SetUnavailable(nil)

	refreshed, err := f.extractor.RefreshEmbeddings(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed)

	missing, _ = f.content.ListMissingEmbeddings(ctx, 0)
	assert.Empty(t, missing)
}

func TestRefreshEmbeddings_NoService(t *testing.T) {
	f := newExtractorFixture(t)
	f.services.SetEmbeddingService(nil)

	_, err := f.extractor.RefreshEmbeddings(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestExtractSubject_EmptySubject(t *testing.T) {
	f := newExtractorFixture(t)
	_, err := f.extractor.ExtractSubject(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
