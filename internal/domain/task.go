package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies the kind of generation work a task performs.
type TaskType string

// Possible task type values
const (
	TaskTypeBook          TaskType = "book"
	TaskTypeChapter       TaskType = "chapter"
	TaskTypeStyleTraining TaskType = "style_training"
	TaskTypeAudiobook     TaskType = "audiobook"
	TaskTypeCoverArt      TaskType = "cover_art"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID      = errors.New("task ID cannot be empty")
	ErrEmptyTaskOwnerID = errors.New("task owner ID cannot be empty")
	ErrNegativeCost     = errors.New("task credits cost cannot be negative")
)

// Task represents one unit of queued, paid generation work. Credits are
// debited when the task is admitted and refunded exactly once if the task
// ends failed or cancelled.
type Task struct {
	ID            uuid.UUID      `json:"id"`
	Type          TaskType       `json:"type"`
	OwnerID       uuid.UUID      `json:"owner_id"`
	Status        TaskStatus     `json:"status"`
	Priority      int            `json:"priority"`
	CreditsCost   int64          `json:"credits_cost"`
	CorrelationID uuid.UUID      `json:"correlation_id"`
	Error         string         `json:"error,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// NewTask creates a new Task in pending status with the given owner, type,
// cost, and correlation reference. It generates a new UUID for the task ID
// and sets the creation timestamp.
// Returns an error if validation fails.
func NewTask(
	ownerID uuid.UUID,
	taskType TaskType,
	creditsCost int64,
	priority int,
	correlationID uuid.UUID,
) (*Task, error) {
	task := &Task{
		ID:            uuid.New(),
		Type:          taskType,
		OwnerID:       ownerID,
		Status:        TaskStatusPending,
		Priority:      priority,
		CreditsCost:   creditsCost,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.OwnerID == uuid.Nil {
		return ErrEmptyTaskOwnerID
	}

	if !IsValidTaskType(t.Type) {
		return ErrInvalidTaskType
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if t.CreditsCost < 0 {
		return ErrNegativeCost
	}

	return nil
}

// IsTerminal reports whether the task has reached a final state.
// Terminal tasks are never mutated again.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// IsTerminal reports whether the status is a final lifecycle state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the task lifecycle permits moving from
// one status to another. The only legal transitions are
// pending -> processing, processing -> completed/failed, and
// pending/processing -> cancelled.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusProcessing || to == TaskStatusCancelled
	case TaskStatusProcessing:
		return to == TaskStatusCompleted || to == TaskStatusFailed || to == TaskStatusCancelled
	default:
		return false
	}
}

// TransitionTo moves the task to the given status, setting StartedAt when
// leaving pending and CompletedAt when reaching a terminal state.
// Returns ErrInvalidTransition if the state machine forbids the change.
func (t *Task) TransitionTo(status TaskStatus) error {
	if !isValidTaskStatus(status) {
		return ErrInvalidTaskStatus
	}

	if !CanTransition(t.Status, status) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()

	if t.Status == TaskStatusPending && status != TaskStatusCancelled {
		t.StartedAt = &now
	}
	if status.IsTerminal() {
		t.CompletedAt = &now
	}

	t.Status = status
	return nil
}

// IsValidTaskType checks if the given type is a known TaskType.
func IsValidTaskType(taskType TaskType) bool {
	switch taskType {
	case TaskTypeBook, TaskTypeChapter, TaskTypeStyleTraining,
		TaskTypeAudiobook, TaskTypeCoverArt:
		return true
	default:
		return false
	}
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}
