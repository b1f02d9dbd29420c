package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/services"
)

// Worker processes pipeline tasks from the task queue: subject
// indexing, extraction and embedding refresh. A completed index run
// chains an extract task for the same subject.
type Worker struct {
	taskQueue driven.TaskQueue
	indexer   *services.ResourceIndexer
	extractor *services.ExtractOrchestrator
	scheduler *services.Scheduler
	logger    *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout int // seconds

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Indexer        *services.ResourceIndexer
	Extractor      *services.ExtractOrchestrator
	Scheduler      *services.Scheduler
	Logger         *slog.Logger
	Concurrency    int // Number of concurrent task processors
	DequeueTimeout int // Seconds to wait for a task before checking again
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		indexer:        cfg.Indexer,
		extractor:      cfg.Extractor,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	// Start the scheduler if provided
	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	// Start worker goroutines
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			time.Sleep(time.Second) // Back off on error
			continue
		}

		if task == nil {
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// processTask processes a single task.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "subject", task.Subject())
	logger.Info("processing task")

	startTime := time.Now()
	var err error

	switch task.Type {
	case domain.TaskTypeIndexSubject:
		err = w.handleIndexSubject(ctx, task)
	case domain.TaskTypeExtractSubject:
		err = w.handleExtractSubject(ctx, task)
	case domain.TaskTypeRefreshEmbeddings:
		err = w.handleRefreshEmbeddings(ctx)
	default:
		err = fmt.Errorf("unknown task type: %s", task.Type)
	}

	duration := time.Since(startTime)

	if err != nil {
		// A run already in flight is not a retryable failure; drop the
		// duplicate trigger.
		if errors.Is(err, domain.ErrRunInProgress) {
			logger.Info("run already in progress, dropping task", "duration", duration)
			if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
				logger.Error("failed to ack task", "ack_error", ackErr)
			}
			return
		}

		logger.Error("task failed",
			"duration", duration,
			"error", err,
		)

		if nackErr := w.taskQueue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	logger.Info("task completed", "duration", duration)

	if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

// handleIndexSubject runs discovery for a subject, then chains an
// extraction task so new entries get processed without waiting for the
// next schedule.
func (w *Worker) handleIndexSubject(ctx context.Context, task *domain.Task) error {
	subject := task.Subject()
	if subject == "" {
		return fmt.Errorf("subject not found in task payload")
	}

	run, err := w.indexer.IndexSubject(ctx, subject)
	if err != nil {
		return err
	}

	if run.New > 0 {
		follow := domain.NewExtractSubjectTask(subject)
		if err := w.taskQueue.Enqueue(ctx, follow); err != nil {
			w.logger.Error("failed to chain extract task",
				"subject", subject, "error", err)
		}
	}

	return nil
}

// handleExtractSubject handles an extract_subject task.
func (w *Worker) handleExtractSubject(ctx context.Context, task *domain.Task) error {
	subject := task.Subject()
	if subject == "" {
		return fmt.Errorf("subject not found in task payload")
	}

	result, err := w.extractor.ExtractSubject(ctx, subject)
	if err != nil {
		return err
	}

	if len(result.Failures) > 0 {
		// Per-entry failures are logged and retried next pass; the
		// batch itself succeeded.
		w.logger.Warn("extraction finished with per-entry failures",
			"subject", subject,
			"indexed", result.Indexed,
			"failures", len(result.Failures),
		)
	}

	return nil
}

// handleRefreshEmbeddings handles a refresh_embeddings task.
func (w *Worker) handleRefreshEmbeddings(ctx context.Context) error {
	refreshed, err := w.extractor.RefreshEmbeddings(ctx, 0)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingUnavailable) {
			// Nothing to do until the service returns
			w.logger.Info("embedding service unavailable, skipping refresh")
			return nil
		}
		return err
	}

	w.logger.Info("embedding refresh task finished", "refreshed", refreshed)
	return nil
}

// Health returns health status of the worker.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
