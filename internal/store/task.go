package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/storyforge/storyforge-api/internal/domain"
)

// TaskStore defines the interface for task data persistence.
type TaskStore interface {
	// Create saves a new pending task to the store. The caller is
	// responsible for having already debited the account's credits,
	// typically within the same transaction via WithTx.
	Create(ctx context.Context, task *domain.Task) error

	// ClaimNext atomically selects the next pending task, ordered by
	// (priority desc, created_at asc), transitions it to processing, and
	// returns it with StartedAt set. The claim is a single conditional
	// update: concurrent callers never receive the same task. Returns
	// ErrNoPendingTasks when nothing is claimable.
	ClaimNext(ctx context.Context) (*domain.Task, error)

	// Complete transitions a processing task to completed and records the
	// result metadata. Returns ErrInvalidTransition if the task is no
	// longer processing (for example, cancelled while executing).
	Complete(ctx context.Context, taskID uuid.UUID, result map[string]any) error

	// Fail transitions a processing task to failed and records the error
	// message. Returns ErrInvalidTransition if the task is no longer
	// processing.
	Fail(ctx context.Context, taskID uuid.UUID, errorMessage string) error

	// Cancel transitions a pending or processing task to cancelled and
	// returns the task as it was at cancellation time. Returns
	// ErrNotCancellable if the task is already terminal.
	Cancel(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)

	// GetByID retrieves a task by its unique ID.
	GetByID(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)

	// ListActive retrieves an owner's pending and processing tasks,
	// ordered by creation time.
	ListActive(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error)

	// ListHistory retrieves a page of an owner's terminal tasks, newest
	// first. Page numbering starts at 1.
	ListHistory(ctx context.Context, ownerID uuid.UUID, page, pageSize int) ([]*domain.Task, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) TaskStore
}
