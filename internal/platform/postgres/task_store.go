package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/platform/logger"
	"github.com/storyforge/storyforge-api/internal/store"
)

// taskColumns is the column list shared by every task query.
const taskColumns = `id, type, owner_id, status, priority, credits_cost,
	correlation_id, error_message, result, created_at, started_at, completed_at`

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

// Ensure PostgresTaskStore implements store.TaskStore
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// WithTx returns a new store bound to the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

// Create persists a new pending task.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (id, type, owner_id, status, priority, credits_cost,
			correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Type,
		task.OwnerID,
		task.Status,
		task.Priority,
		task.CreditsCost,
		task.CorrelationID,
		task.CreatedAt,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", task.ID,
			"task_type", task.Type,
			"error", err)
		return fmt.Errorf("failed to save task to database: %w", err)
	}

	return nil
}

// ClaimNext atomically claims the next pending task. The inner SELECT
// uses FOR UPDATE SKIP LOCKED so concurrent claimers each lock a
// different row; the claim and the status transition are one statement.
func (s *PostgresTaskStore) ClaimNext(ctx context.Context) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	query := fmt.Sprintf(`
		UPDATE tasks
		SET status = $1, started_at = $2
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = $3
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s
	`, taskColumns)

	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, query,
		domain.TaskStatusProcessing,
		now,
		domain.TaskStatusPending,
	)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoPendingTasks
		}
		log.Error("failed to claim next task", "error", err)
		return nil, fmt.Errorf("failed to claim next task: %w", err)
	}

	return task, nil
}

// Complete transitions a processing task to completed and stores the
// result metadata. The status predicate makes the terminal write
// conditional: a task cancelled mid-flight is left untouched.
func (s *PostgresTaskStore) Complete(ctx context.Context, taskID uuid.UUID, result map[string]any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal task result: %w", err)
	}

	query := `
		UPDATE tasks
		SET status = $1, result = $2, completed_at = $3
		WHERE id = $4 AND status = $5
	`

	return s.settle(ctx, taskID, query,
		domain.TaskStatusCompleted,
		resultJSON,
		time.Now().UTC(),
		taskID,
		domain.TaskStatusProcessing,
	)
}

// Fail transitions a processing task to failed and stores the error message.
func (s *PostgresTaskStore) Fail(ctx context.Context, taskID uuid.UUID, errorMessage string) error {
	query := `
		UPDATE tasks
		SET status = $1, error_message = $2, completed_at = $3
		WHERE id = $4 AND status = $5
	`

	return s.settle(ctx, taskID, query,
		domain.TaskStatusFailed,
		errorMessage,
		time.Now().UTC(),
		taskID,
		domain.TaskStatusProcessing,
	)
}

// settle executes a conditional terminal update and maps a zero row count
// to the appropriate sentinel.
func (s *PostgresTaskStore) settle(ctx context.Context, taskID uuid.UUID, query string, args ...any) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to settle task", "task_id", taskID, "error", err)
		return fmt.Errorf("failed to settle task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, err := s.GetByID(ctx, taskID); err != nil {
			return err
		}
		return store.ErrInvalidTransition
	}

	return nil
}

// Cancel transitions a pending or processing task to cancelled and
// returns the cancelled task.
func (s *PostgresTaskStore) Cancel(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	log := logger.FromContext(ctx)

	query := fmt.Sprintf(`
		UPDATE tasks
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status IN ($4, $5)
		RETURNING %s
	`, taskColumns)

	row := s.db.QueryRowContext(ctx, query,
		domain.TaskStatusCancelled,
		time.Now().UTC(),
		taskID,
		domain.TaskStatusPending,
		domain.TaskStatusProcessing,
	)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := s.GetByID(ctx, taskID); getErr != nil {
				return nil, getErr
			}
			return nil, store.ErrNotCancellable
		}
		log.Error("failed to cancel task", "task_id", taskID, "error", err)
		return nil, fmt.Errorf("failed to cancel task: %w", err)
	}

	return task, nil
}

// GetByID retrieves a task by its unique ID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1`, taskColumns)

	row := s.db.QueryRowContext(ctx, query, taskID)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// ListActive retrieves an owner's pending and processing tasks.
func (s *PostgresTaskStore) ListActive(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE owner_id = $1 AND status IN ($2, $3)
		ORDER BY created_at ASC
	`, taskColumns)

	return s.queryTasks(ctx, query, ownerID, domain.TaskStatusPending, domain.TaskStatusProcessing)
}

// ListHistory retrieves a page of an owner's terminal tasks, newest first.
func (s *PostgresTaskStore) ListHistory(
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

	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE owner_id = $1 AND status IN ($2, $3, $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`, taskColumns)

	return s.queryTasks(ctx, query,
		ownerID,
		domain.TaskStatusCompleted,
		domain.TaskStatusFailed,
		domain.TaskStatusCancelled,
		pageSize,
		(page-1)*pageSize,
	)
}

// queryTasks runs a multi-row task query and scans the results.
func (s *PostgresTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", "error", err)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask scans one task row in taskColumns order.
func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var errorMessage sql.NullString
	var resultJSON []byte
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.Type,
		&task.OwnerID,
		&task.Status,
		&task.Priority,
		&task.CreditsCost,
		&task.CorrelationID,
		&errorMessage,
		&resultJSON,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Error = errorMessage.String
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &task.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task result: %w", err)
		}
	}

	return &task, nil
}
