package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
	"github.com/chenxi840221/personalized-learning-copilot/internal/runtime"
)

const defaultExtractConcurrency = 4

// ExtractResult summarises one extraction pass over a subject's
// pending catalog entries.
type ExtractResult struct {
	Subject   string                     `json:"subject"`
	Processed int                        `json:"processed"`
	Indexed   int                        `json:"indexed"`
	// WithoutEmbedding counts items indexed despite an embedding
	// failure. They stay searchable through filters and are picked up
	// by the next embedding refresh.
	WithoutEmbedding int                        `json:"without_embedding"`
	Failures         []*domain.ExtractionFailure `json:"failures,omitempty"`
	Duration         time.Duration              `json:"duration"`
}

// ExtractOrchestrator runs the extraction phase: fetch each pending
// catalog entry, classify it, embed it when possible and upsert the
// result into the content index. A single bad entry never takes down
// the batch.
type ExtractOrchestrator struct {
	source     driven.SubjectSource
	catalog    driven.CatalogStore
	content    driven.ContentStore
	classifier driven.Classifier
	services   *runtime.Services
	logger     *slog.Logger

	concurrency int
}

// ExtractOrchestratorConfig holds dependencies for ExtractOrchestrator.
type ExtractOrchestratorConfig struct {
	Source      driven.SubjectSource
	Catalog     driven.CatalogStore
	Content     driven.ContentStore
	Classifier  driven.Classifier
	Services    *runtime.Services
	Logger      *slog.Logger
	Concurrency int // parallel fetches per batch (default: 4)
}

// NewExtractOrchestrator creates a new extraction orchestrator.
func NewExtractOrchestrator(cfg ExtractOrchestratorConfig) *ExtractOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultExtractConcurrency
	}
	return &ExtractOrchestrator{
		source:      cfg.Source,
		catalog:     cfg.Catalog,
		content:     cfg.Content,
		classifier:  cfg.Classifier,
		services:    cfg.Services,
		logger:      logger,
		concurrency: concurrency,
	}
}

// ExtractSubject processes all pending catalog entries for a subject.
// Entries that fail to fetch stay pending and are retried on the next
// pass; entries whose embedding fails are indexed without one.
func (o *ExtractOrchestrator) ExtractSubject(ctx context.Context, subject string) (*ExtractResult, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}

	start := time.Now()

	if err := o.content.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensure content index: %w", err)
	}

	pending, err := o.catalog.ListPending(ctx, subject, 0)
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", err)
	}

	o.logger.Info("starting extraction", "subject", subject, "pending", len(pending))

	result := &ExtractResult{Subject: subject, Processed: len(pending)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for _, entry := range pending {
		g.Go(func() error {
			indexed, embedded, failure := o.extractOne(gctx, entry)

			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				result.Failures = append(result.Failures, failure)
			}
			if indexed {
				result.Indexed++
				if !embedded {
					result.WithoutEmbedding++
				}
			}
			// Entry failures never abort the group
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)

	o.logger.Info("extraction finished",
		"subject", subject,
		"processed", result.Processed,
		"indexed", result.Indexed,
		"without_embedding", result.WithoutEmbedding,
		"failures", len(result.Failures),
		"duration", result.Duration,
	)

	return result, nil
}

// extractOne handles a single catalog entry end to end.
func (o *ExtractOrchestrator) extractOne(ctx context.Context, entry *domain.ResourceCatalogEntry) (indexed, embedded bool, failure *domain.ExtractionFailure) {
	page, err := o.source.FetchResource(ctx, entry.URL)
	if err != nil {
		o.logger.Warn("failed to fetch resource", "url", entry.URL, "error", err)
		return false, false, &domain.ExtractionFailure{
			URL: entry.URL, Stage: "fetch", Reason: err.Error(),
		}
	}

	item := o.buildItem(entry, page)

	embedded, embedErr := o.embedItem(ctx, item)
	if embedErr != nil {
		// Embedding failure is not extraction failure: the item is
		// stored anyway and the embedding retried later.
		o.logger.Warn("embedding failed, indexing without embedding",
			"url", entry.URL, "error", embedErr)
		failure = &domain.ExtractionFailure{
			URL: entry.URL, Stage: "embed", Reason: embedErr.Error(),
		}
	}

	if err := o.content.Upsert(ctx, item); err != nil {
		o.logger.Error("failed to upsert content item", "url", entry.URL, "error", err)
		return false, false, &domain.ExtractionFailure{
			URL: entry.URL, Stage: "store", Reason: err.Error(),
		}
	}

	if err := o.catalog.MarkExtracted(ctx, entry.URL, time.Now()); err != nil {
		o.logger.Warn("failed to mark entry extracted", "url", entry.URL, "error", err)
	}

	return true, embedded, failure
}

// buildItem assembles a ContentItem from a fetched page and its
// classification. Re-extracting the same URL produces the same ID, so
// the upsert replaces rather than duplicates.
func (o *ExtractOrchestrator) buildItem(entry *domain.ResourceCatalogEntry, page *driven.ResourcePage) *domain.ContentItem {
	verdict := o.classifier.Classify(page, entry.Subject)

	title := page.Title
	if title == "" {
		title = entry.DiscoveredTitle
	}

	// Pages without a meta description fall back to the opening of
	// the extracted body. The description feeds the embedding text,
	// so without this an undescribed page would embed on its title
	// alone.
	description := page.Description
	if description == "" {
		description = bodyExcerpt(page.Body)
	}

	duration := page.DurationMin
	if duration <= 0 {
		duration = verdict.DurationMinutes
	}

	topics := verdict.Topics
	if entry.Topic != "" {
		topics = append([]string{entry.Topic}, topics...)
	}

	now := time.Now()
	return &domain.ContentItem{
		ID:              domain.ContentID(entry.URL),
		Title:           title,
		Description:     description,
		ContentType:     verdict.ContentType,
		Subject:         entry.Subject,
		Topics:          topics,
		URL:             entry.URL,
		Source:          domain.DefaultContentSource,
		DifficultyLevel: verdict.DifficultyLevel,
		GradeLevel:      verdict.GradeLevel,
		DurationMinutes: duration,
		Keywords:        verdict.Keywords,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// embedItem attaches an embedding to the item when the embedding
// service is available. Returns whether an embedding was attached.
func (o *ExtractOrchestrator) embedItem(ctx context.Context, item *domain.ContentItem) (bool, error) {
	svc := o.services.EmbeddingService()
	if svc == nil {
		return false, nil
	}

	vectors, err := svc.Embed(ctx, []string{embeddingText(item)})
	if err != nil {
		return false, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return false, fmt.Errorf("%w: empty embedding response", domain.ErrEmbeddingUnavailable)
	}

	item.Embedding = vectors[0]
	return true, nil
}

// RefreshEmbeddings retries embedding for items that were indexed
// without one. Returns how many items gained an embedding.
func (o *ExtractOrchestrator) RefreshEmbeddings(ctx context.Context, limit int) (int, error) {
	svc := o.services.EmbeddingService()
	if svc == nil {
		return 0, domain.ErrEmbeddingUnavailable
	}

	missing, err := o.content.ListMissingEmbeddings(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list items missing embeddings: %w", err)
	}
	if len(missing) == 0 {
		return 0, nil
	}

	o.logger.Info("refreshing embeddings", "candidates", len(missing))

	refreshed := 0
	for _, item := range missing {
		select {
		case <-ctx.Done():
			return refreshed, ctx.Err()
		default:
		}

		vectors, err := svc.Embed(ctx, []string{embeddingText(item)})
		if err != nil {
			o.logger.Warn("embedding retry failed", "id", item.ID, "error", err)
			continue
		}
		if len(vectors) == 0 || len(vectors[0]) == 0 {
			continue
		}

		item.Embedding = vectors[0]
		item.UpdatedAt = time.Now()
		if err := o.content.Upsert(ctx, item); err != nil {
			o.logger.Warn("failed to store refreshed embedding", "id", item.ID, "error", err)
			continue
		}
		refreshed++
	}

	o.logger.Info("embedding refresh finished", "refreshed", refreshed, "candidates", len(missing))
	return refreshed, nil
}

// embeddingText is the canonical text fed to the embedding model for a
// content item: title, description (which carries the body excerpt for
// undescribed pages) and classification. Built from stored fields only
// so an extraction-time embedding and a later refresh embed the same
// text. Keep stable: changing it silently shifts the whole similarity
// space.
func embeddingText(item *domain.ContentItem) string {
	parts := []string{item.Title, item.Description, item.Subject}
	if len(item.Topics) > 0 {
		parts = append(parts, strings.Join(item.Topics, " "))
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// bodyExcerptLimit caps how much page body stands in for a missing
// description.
const bodyExcerptLimit = 500

// bodyExcerpt returns the opening of the page body, cut at a word
// boundary near the limit.
func bodyExcerpt(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= bodyExcerptLimit {
		return body
	}
	cut := body[:bodyExcerptLimit]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
