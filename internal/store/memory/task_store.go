package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/store"
)

// TaskStore is a mutex-guarded in-memory implementation of store.TaskStore.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

// Ensure TaskStore implements store.TaskStore
var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// Create saves a new pending task.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "create", "validation failed", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}

	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// ClaimNext atomically claims the next pending task ordered by
// (priority desc, created_at asc). The whole selection and transition
// happens under one lock acquisition, so concurrent claimers never
// receive the same task.
func (s *TaskStore) ClaimNext(ctx context.Context) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidate *domain.Task
	for _, t := range s.tasks {
		if t.Status != domain.TaskStatusPending {
			continue
		}
		if candidate == nil || claimBefore(t, candidate) {
			candidate = t
		}
	}

	if candidate == nil {
		return nil, store.ErrNoPendingTasks
	}

	now := time.Now().UTC()
	candidate.Status = domain.TaskStatusProcessing
	candidate.StartedAt = &now

	return cloneTask(candidate), nil
}

// Complete transitions a processing task to completed.
func (s *TaskStore) Complete(ctx context.Context, taskID uuid.UUID, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}

	if task.Status != domain.TaskStatusProcessing {
		return store.ErrInvalidTransition
	}

	now := time.Now().UTC()
	task.Status = domain.TaskStatusCompleted
	task.CompletedAt = &now
	task.Result = result
	return nil
}

// Fail transitions a processing task to failed.
func (s *TaskStore) Fail(ctx context.Context, taskID uuid.UUID, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}

	if task.Status != domain.TaskStatusProcessing {
		return store.ErrInvalidTransition
	}

	now := time.Now().UTC()
	task.Status = domain.TaskStatusFailed
	task.CompletedAt = &now
	task.Error = errorMessage
	return nil
}

// Cancel transitions a pending or processing task to cancelled.
func (s *TaskStore) Cancel(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	if task.Status != domain.TaskStatusPending && task.Status != domain.TaskStatusProcessing {
		return nil, store.ErrNotCancellable
	}

	now := time.Now().UTC()
	task.Status = domain.TaskStatusCancelled
	task.CompletedAt = &now

	return cloneTask(task), nil
}

// GetByID retrieves a task by ID.
func (s *TaskStore) GetByID(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	return cloneTask(task), nil
}

// ListActive retrieves an owner's pending and processing tasks.
func (s *TaskStore) ListActive(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*domain.Task
	for _, t := range s.tasks {
		if t.OwnerID != ownerID {
			continue
		}
		if t.Status == domain.TaskStatusPending || t.Status == domain.TaskStatusProcessing {
			active = append(active, cloneTask(t))
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})

	return active, nil
}

// ListHistory retrieves a page of an owner's terminal tasks, newest first.
func (s *TaskStore) ListHistory(
	ctx context.Context,
	ownerID uuid.UUID,
	page, pageSize int,
) ([]*domain.Task, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var history []*domain.Task
	for _, t := range s.tasks {
		if t.OwnerID == ownerID && t.IsTerminal() {
			history = append(history, cloneTask(t))
		}
	}

	sort.Slice(history, func(i, j int) bool {
		return history[i].CreatedAt.After(history[j].CreatedAt)
	})

	start := (page - 1) * pageSize
	if start >= len(history) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(history) {
		end = len(history)
	}

	return history[start:end], nil
}

// WithTx returns the store itself; the in-memory implementation has no
// transactions and each operation is already atomic under its lock.
func (s *TaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return s
}

// claimBefore reports whether task a should be claimed before task b:
// higher priority first, then older creation time.
func claimBefore(a, b *domain.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// cloneTask returns a copy so callers cannot mutate stored state.
func cloneTask(t *domain.Task) *domain.Task {
	clone := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		clone.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		clone.CompletedAt = &completed
	}
	if t.Result != nil {
		clone.Result = make(map[string]any, len(t.Result))
		for k, v := range t.Result {
			clone.Result[k] = v
		}
	}
	return &clone
}
