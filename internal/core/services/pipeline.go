package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driving"
)

// Ensure pipelineService implements PipelineService
var _ driving.PipelineService = (*pipelineService)(nil)

// pipelineService implements the PipelineService interface.
// Triggers only enqueue; the worker executes.
type pipelineService struct {
	queue   driven.TaskQueue
	catalog driven.CatalogStore
	content driven.ContentStore
	logger  *slog.Logger
}

// NewPipelineService creates a new PipelineService
func NewPipelineService(
	queue driven.TaskQueue,
	catalog driven.CatalogStore,
	content driven.ContentStore,
	logger *slog.Logger,
) driving.PipelineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &pipelineService{
		queue:   queue,
		catalog: catalog,
		content: content,
		logger:  logger,
	}
}

func (s *pipelineService) TriggerIndex(ctx context.Context, subject string) (*domain.Task, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}
	return s.enqueue(ctx, domain.NewIndexSubjectTask(subject))
}

func (s *pipelineService) TriggerExtract(ctx context.Context, subject string) (*domain.Task, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}
	return s.enqueue(ctx, domain.NewExtractSubjectTask(subject))
}

func (s *pipelineService) TriggerEmbeddingRefresh(ctx context.Context) (*domain.Task, error) {
	return s.enqueue(ctx, domain.NewTask(domain.TaskTypeRefreshEmbeddings, nil))
}

func (s *pipelineService) enqueue(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue %s task: %w", task.Type, err)
	}
	s.logger.Info("enqueued pipeline task",
		"task_id", task.ID,
		"task_type", task.Type,
		"subject", task.Subject(),
	)
	return task, nil
}

func (s *pipelineService) PipelineStatus(ctx context.Context, subject string) (*driving.PipelineStatusReport, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}

	report := &driving.PipelineStatusReport{Subject: subject}

	lastRun, err := s.catalog.LastRun(ctx, subject)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load last run: %w", err)
	}
	report.LastRun = lastRun

	pending, err := s.catalog.CountPending(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("count pending entries: %w", err)
	}
	report.PendingExtract = pending

	indexed, err := s.content.Count(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("count indexed items: %w", err)
	}
	report.IndexedItems = int64(indexed)

	missing, err := s.content.ListMissingEmbeddings(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list missing embeddings: %w", err)
	}
	report.MissingEmbedding = len(missing)

	return report, nil
}
