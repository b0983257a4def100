package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge-api/internal/config"
	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/events"
	"github.com/storyforge/storyforge-api/internal/generation"
	"github.com/storyforge/storyforge-api/internal/platform/logger"
	"github.com/storyforge/storyforge-api/internal/scheduler"
	"github.com/storyforge/storyforge-api/internal/service"
	"github.com/storyforge/storyforge-api/internal/store/memory"
)

type schedulerFixture struct {
	tasks    *memory.TaskStore
	ledger   *memory.LedgerStore
	notifier *events.RecordingNotifier
	registry *generation.Registry
	svc      *service.TaskService
	sched    *scheduler.Scheduler
}

func newSchedulerFixture(t *testing.T, workers int, executor generation.Executor) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		tasks:    memory.NewTaskStore(),
		ledger:   memory.NewLedgerStore(),
		notifier: events.NewRecordingNotifier(),
		registry: generation.NewRegistry(),
	}
	f.registry.Register(domain.TaskTypeChapter, executor)

	credits := config.CreditsConfig{ChapterCost: 10}
	f.svc = service.NewTaskService(nil, f.tasks, f.ledger, credits, f.notifier)

	log, err := logger.Setup("error")
	require.NoError(t, err)

	f.sched = scheduler.New(
		config.SchedulerConfig{WorkerCount: workers, TickIntervalSeconds: 1, TaskTimeoutSeconds: 1},
		f.tasks, f.registry, f.svc, f.notifier, log)

	f.sched.Start()
	t.Cleanup(f.sched.Stop)

	return f
}

func (f *schedulerFixture) admit(t *testing.T, owner uuid.UUID) *domain.Task {
	t.Helper()
	_, err := f.ledger.Credit(context.Background(), owner, 100,
		domain.TransactionKindPurchase, nil, "test funding")
	require.NoError(t, err)

	task, err := f.svc.AdmitTask(context.Background(), owner, domain.TaskTypeChapter, 0, uuid.New())
	require.NoError(t, err)
	return task
}

func (f *schedulerFixture) waitForStatus(t *testing.T, taskID uuid.UUID, status domain.TaskStatus) *domain.Task {
	t.Helper()
	var task *domain.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = f.tasks.GetByID(context.Background(), taskID)
		return err == nil && task.Status == status
	}, 5*time.Second, 10*time.Millisecond, "task never reached status %s", status)
	return task
}

func eventTypes(recorded []events.RecordedEvent) []events.EventType {
	types := make([]events.EventType, 0, len(recorded))
	for _, r := range recorded {
		types = append(types, r.Event.Type)
	}
	return types
}

func TestSchedulerCompletesTask(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, 1, generation.ExecutorFunc(
		func(ctx context.Context, task *domain.Task) (generation.Result, error) {
			return generation.Result{"words": 1200}, nil
		}))

	owner := uuid.New()
	task := f.admit(t, owner)

	done := f.waitForStatus(t, task.ID, domain.TaskStatusCompleted)
	assert.Equal(t, 1200, done.Result["words"])
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)

	// Debit kept on success.
	balance, err := f.ledger.Balance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(90), balance)

	assert.Eventually(t, func() bool {
		types := eventTypes(f.notifier.Events())
		return len(types) == 2 &&
			types[0] == events.EventGenerationUpdate &&
			types[1] == events.EventGenerationCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerFailsTaskAndRefunds(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, 1, generation.ExecutorFunc(
		func(ctx context.Context, task *domain.Task) (generation.Result, error) {
			return nil, errors.New("model unavailable")
		}))

	owner := uuid.New()
	task := f.admit(t, owner)

	failed := f.waitForStatus(t, task.ID, domain.TaskStatusFailed)
	assert.Equal(t, "model unavailable", failed.Error)

	balance, err := f.ledger.Balance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestSchedulerRecoversFromExecutorPanic(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, 1, generation.ExecutorFunc(
		func(ctx context.Context, task *domain.Task) (generation.Result, error) {
			panic("boom")
		}))

	owner := uuid.New()
	task := f.admit(t, owner)

	failed := f.waitForStatus(t, task.ID, domain.TaskStatusFailed)
	assert.Contains(t, failed.Error, "executor panic")

	// A panicking executor must not take the worker down: a second task
	// still gets claimed and settled.
	second, err := f.svc.AdmitTask(context.Background(), owner, domain.TaskTypeChapter, 0, uuid.New())
	require.NoError(t, err)
	f.waitForStatus(t, second.ID, domain.TaskStatusFailed)

	balance, err := f.ledger.Balance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestSchedulerTimesOutLongExecution(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, 1, generation.ExecutorFunc(
		func(ctx context.Context, task *domain.Task) (generation.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))

	owner := uuid.New()
	task := f.admit(t, owner)

	failed := f.waitForStatus(t, task.ID, domain.TaskStatusFailed)
	assert.Contains(t, failed.Error, "deadline exceeded")

	balance, err := f.ledger.Balance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestSchedulerDiscardsCancelledTaskResult(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	f := newSchedulerFixture(t, 1, generation.ExecutorFunc(
		func(ctx context.Context, task *domain.Task) (generation.Result, error) {
			<-release
			return generation.Result{"words": 900}, nil
		}))

	owner := uuid.New()
	task := f.admit(t, owner)

	// Wait until a worker has claimed the task, then cancel it out from
	// under the in-flight execution.
	f.waitForStatus(t, task.ID, domain.TaskStatusProcessing)

	cancelled, err := f.svc.CancelTask(context.Background(), task.ID, owner)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusCancelled, cancelled.Status)

	close(release)

	// The late result loses the settlement race: the task stays
	// cancelled, the result is dropped, and the refund stands.
	time.Sleep(200 * time.Millisecond)
	stored, err := f.tasks.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, stored.Status)
	assert.Nil(t, stored.Result)

	balance, err := f.ledger.Balance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	for _, recorded := range f.notifier.Events() {
		assert.NotEqual(t, events.EventGenerationCompleted, recorded.Event.Type)
	}
}

func TestSchedulerDrainsQueueAcrossWorkers(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t, 4, generation.ExecutorFunc(
		func(ctx context.Context, task *domain.Task) (generation.Result, error) {
			return generation.Result{"ok": true}, nil
		}))

	owner := uuid.New()
	_, err := f.ledger.Credit(context.Background(), owner, 1000,
		domain.TransactionKindPurchase, nil, "test funding")
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, 20)
	for i := 0; i < 20; i++ {
		task, err := f.svc.AdmitTask(context.Background(), owner, domain.TaskTypeChapter, 0, uuid.New())
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	for _, id := range ids {
		f.waitForStatus(t, id, domain.TaskStatusCompleted)
	}

	// Every task settled exactly once: 1000 - 20*10.
	balance, err := f.ledger.Balance(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(800), balance)
}
