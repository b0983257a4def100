package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storyforge/storyforge-api/internal/config"
	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/events"
	"github.com/storyforge/storyforge-api/internal/generation"
	"github.com/storyforge/storyforge-api/internal/store"
)

// Settler records task outcomes. Implemented by the task service, which
// owns the terminal-write-plus-refund transaction.
type Settler interface {
	CompleteTask(ctx context.Context, task *domain.Task, result map[string]any) error
	FailTask(ctx context.Context, task *domain.Task, errorMessage string) error
}

// Scheduler runs a fixed pool of workers that claim pending tasks,
// execute them, and settle the outcome. Claiming is atomic at the store,
// so workers never race over a task; an idle worker polls again after the
// tick interval.
type Scheduler struct {
	tasks    store.TaskStore
	registry *generation.Registry
	settler  Settler
	notifier events.Notifier
	logger   *slog.Logger

	workerCount  int
	tickInterval time.Duration
	taskTimeout  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler. Start must be called before any work happens.
func New(
	cfg config.SchedulerConfig,
	tasks store.TaskStore,
	registry *generation.Registry,
	settler Settler,
	notifier events.Notifier,
	logger *slog.Logger,
) *Scheduler {
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	return &Scheduler{
		tasks:        tasks,
		registry:     registry,
		settler:      settler,
		notifier:     notifier,
		logger:       logger,
		workerCount:  cfg.WorkerCount,
		tickInterval: time.Duration(cfg.TickIntervalSeconds) * time.Second,
		taskTimeout:  time.Duration(cfg.TaskTimeoutSeconds) * time.Second,
	}
}

// Start launches the worker pool. The workers run until Stop is called.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.logger.Info("scheduler starting",
		"worker_count", s.workerCount,
		"tick_interval", s.tickInterval,
		"task_timeout", s.taskTimeout)

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx, i)
	}
}

// Stop signals all workers to finish and waits for them. A worker that is
// mid-execution completes its current task before exiting.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// runWorker claims and executes tasks until ctx is cancelled. After a
// successful execution it claims again immediately; when the queue is
// empty it waits one tick.
func (s *Scheduler) runWorker(ctx context.Context, id int) {
	defer s.wg.Done()

	log := s.logger.With("worker", id)
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping")
			return
		default:
		}

		task, err := s.tasks.ClaimNext(ctx)
		if err != nil {
			if !errors.Is(err, store.ErrNoPendingTasks) {
				log.Error("failed to claim task", "error", err)
			}
			select {
			case <-time.After(s.tickInterval):
			case <-ctx.Done():
			}
			continue
		}

		s.executeTask(ctx, log, task)
	}
}

// executeTask dispatches one claimed task and settles its outcome. The
// settlement context is detached from the worker's so that a task
// finishing during shutdown is still recorded.
func (s *Scheduler) executeTask(ctx context.Context, log *slog.Logger, task *domain.Task) {
	log.Info("executing task",
		"task_id", task.ID,
		"task_type", task.Type,
		"owner_id", task.OwnerID)

	s.notifier.Notify(ctx, task.OwnerID, events.NewTaskUpdate(task, 0))

	execCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	result, err := s.dispatch(execCtx, task)
	cancel()

	settleCtx, settleCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer settleCancel()

	if err != nil {
		log.Warn("task execution failed",
			"task_id", task.ID,
			"task_type", task.Type,
			"error", err)
		if settleErr := s.settler.FailTask(settleCtx, task, err.Error()); settleErr != nil {
			log.Error("failed to settle failed task", "task_id", task.ID, "error", settleErr)
		}
		return
	}

	log.Info("task completed",
		"task_id", task.ID,
		"task_type", task.Type)
	if settleErr := s.settler.CompleteTask(settleCtx, task, result); settleErr != nil {
		log.Error("failed to settle completed task", "task_id", task.ID, "error", settleErr)
	}
}

// dispatch runs the executor for the task's type, converting panics into
// errors so one misbehaving executor cannot take down a worker.
func (s *Scheduler) dispatch(ctx context.Context, task *domain.Task) (result generation.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fmt.Errorf("%w: executor panic: %v", generation.ErrGenerationFailed, p)
		}
	}()

	return s.registry.Dispatch(ctx, task)
}
