package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven/mocks"
)

// failingQueue wraps the mock queue to fail every enqueue
type failingQueue struct {
	*mocks.MockTaskQueue
	err error
}

func (q *failingQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	return q.err
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(SchedulerConfig{
		Store:     mocks.NewMockScheduleStore(),
		TaskQueue: mocks.NewMockTaskQueue(),
	})

	if s.interval != 30*time.Second {
		t.Errorf("expected default interval 30s, got %v", s.interval)
	}
	if s.logger == nil {
		t.Error("expected default logger")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(SchedulerConfig{
		Store:        mocks.NewMockScheduleStore(),
		TaskQueue:    mocks.NewMockTaskQueue(),
		PollInterval: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("failed to start scheduler: %v", err)
	}

	// Second start is a no-op
	if err := s.Start(ctx); err != nil {
		t.Errorf("second start should not error: %v", err)
	}

	s.Stop()

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if running {
		t.Error("expected scheduler to be stopped")
	}

	// Second stop should not panic
	s.Stop()
}

func TestScheduler_CheckAndEnqueue(t *testing.T) {
	store := mocks.NewMockScheduleStore()
	queue := mocks.NewMockTaskQueue()

	s := NewScheduler(SchedulerConfig{
		Store:        store,
		TaskQueue:    queue,
		PollInterval: time.Hour, // loop never fires in test
	})

	ctx := context.Background()

	due := domain.NewScheduledTask("s1", "Maths crawl", domain.TaskTypeIndexSubject, "Maths", time.Hour)
	due.NextRun = time.Now().Add(-time.Minute)
	s.CreateScheduledTask(ctx, due)

	notDue := domain.NewScheduledTask("s2", "Science crawl", domain.TaskTypeIndexSubject, "Science", time.Hour)
	notDue.NextRun = time.Now().Add(time.Hour)
	s.CreateScheduledTask(ctx, notDue)

	disabled := domain.NewScheduledTask("s3", "English crawl", domain.TaskTypeIndexSubject, "English", time.Hour)
	disabled.Enabled = false
	disabled.NextRun = time.Now().Add(-time.Minute)
	s.CreateScheduledTask(ctx, disabled)

	s.checkAndEnqueue(ctx)

	enqueued := queue.PendingOfType(domain.TaskTypeIndexSubject)
	if len(enqueued) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(enqueued))
	}
	if enqueued[0].Subject() != "Maths" {
		t.Errorf("expected subject Maths, got %q", enqueued[0].Subject())
	}

	// The due schedule should have advanced its next run
	updated, _ := store.GetScheduledTask(ctx, "s1")
	if updated.NextRun.Before(time.Now()) {
		t.Error("expected next run to be advanced")
	}
}

func TestScheduler_CheckAndEnqueue_EnqueueError(t *testing.T) {
	store := mocks.NewMockScheduleStore()
	queue := &failingQueue{
		MockTaskQueue: mocks.NewMockTaskQueue(),
		err:           errors.New("queue unavailable"),
	}

	s := NewScheduler(SchedulerConfig{
		Store:     store,
		TaskQueue: queue,
	})

	ctx := context.Background()

	due := domain.NewScheduledTask("s1", "Maths crawl", domain.TaskTypeIndexSubject, "Maths", time.Hour)
	due.NextRun = time.Now().Add(-time.Minute)
	s.CreateScheduledTask(ctx, due)

	s.checkAndEnqueue(ctx)

	updated, _ := store.GetScheduledTask(ctx, "s1")
	if updated.LastError != "queue unavailable" {
		t.Errorf("expected last error recorded, got %q", updated.LastError)
	}
}

func TestScheduler_LockHeldByOtherInstance(t *testing.T) {
	store := mocks.NewMockScheduleStore()
	queue := mocks.NewMockTaskQueue()
	lock := mocks.NewMockDistributedLock()
	lock.SetLockHeld("scheduler", time.Minute)

	s := NewScheduler(SchedulerConfig{
		Store:     store,
		TaskQueue: queue,
		Lock:      lock,
	})

	ctx := context.Background()

	due := domain.NewScheduledTask("s1", "Maths crawl", domain.TaskTypeIndexSubject, "Maths", time.Hour)
	due.NextRun = time.Now().Add(-time.Minute)
	s.CreateScheduledTask(ctx, due)

	s.checkAndEnqueue(ctx)

	if got := len(queue.PendingOfType(domain.TaskTypeIndexSubject)); got != 0 {
		t.Errorf("expected no tasks while lock is held elsewhere, got %d", got)
	}
}

func TestScheduler_TriggerNow(t *testing.T) {
	store := mocks.NewMockScheduleStore()
	queue := mocks.NewMockTaskQueue()

	s := NewScheduler(SchedulerConfig{
		Store:     store,
		TaskQueue: queue,
	})

	ctx := context.Background()

	scheduled := domain.NewScheduledTask("s1", "Maths crawl", domain.TaskTypeIndexSubject, "Maths", time.Hour)
	s.CreateScheduledTask(ctx, scheduled)

	task, err := s.TriggerNow(ctx, "s1")
	if err != nil {
		t.Fatalf("failed to trigger: %v", err)
	}
	if task.Type != domain.TaskTypeIndexSubject {
		t.Errorf("expected task type %s, got %s", domain.TaskTypeIndexSubject, task.Type)
	}
	if task.Subject() != "Maths" {
		t.Errorf("expected subject Maths, got %q", task.Subject())
	}
}

func TestScheduler_TriggerNow_NotFound(t *testing.T) {
	s := NewScheduler(SchedulerConfig{
		Store:     mocks.NewMockScheduleStore(),
		TaskQueue: mocks.NewMockTaskQueue(),
	})

	_, err := s.TriggerNow(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduler_EnableDisable(t *testing.T) {
	store := mocks.NewMockScheduleStore()
	s := NewScheduler(SchedulerConfig{
		Store:     store,
		TaskQueue: mocks.NewMockTaskQueue(),
	})

	ctx := context.Background()
	s.CreateScheduledTask(ctx, domain.NewScheduledTask("s1", "Test", domain.TaskTypeIndexSubject, "Maths", time.Hour))

	if err := s.DisableScheduledTask(ctx, "s1"); err != nil {
		t.Fatalf("failed to disable: %v", err)
	}
	got, _ := s.GetScheduledTask(ctx, "s1")
	if got.Enabled {
		t.Error("expected disabled")
	}

	if err := s.EnableScheduledTask(ctx, "s1"); err != nil {
		t.Fatalf("failed to enable: %v", err)
	}
	got, _ = s.GetScheduledTask(ctx, "s1")
	if !got.Enabled {
		t.Error("expected enabled")
	}
}
