package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/storyforge/storyforge-api/internal/domain"
)

// EventType identifies the kind of push event sent to clients.
type EventType string

// Push event types, as they appear on the wire.
const (
	EventConnected           EventType = "connected"
	EventGenerationUpdate    EventType = "generation_update"
	EventGenerationCompleted EventType = "generation_completed"
	EventGenerationFailed    EventType = "generation_failed"
)

// TaskEvent is one task lifecycle event, addressed to the task owner's
// live connections.
type TaskEvent struct {
	Type      EventType       `json:"type"`
	TaskID    uuid.UUID       `json:"task_id"`
	TaskType  domain.TaskType `json:"task_type"`
	Status    string          `json:"status,omitempty"`
	Progress  int             `json:"progress,omitempty"`
	Result    map[string]any  `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewTaskUpdate builds a generation_update event for a task.
func NewTaskUpdate(task *domain.Task, progress int) TaskEvent {
	return TaskEvent{
		Type:      EventGenerationUpdate,
		TaskID:    task.ID,
		TaskType:  task.Type,
		Status:    string(task.Status),
		Progress:  progress,
		Timestamp: time.Now().UTC(),
	}
}

// NewTaskCompleted builds a generation_completed event carrying the result.
func NewTaskCompleted(task *domain.Task, result map[string]any) TaskEvent {
	return TaskEvent{
		Type:      EventGenerationCompleted,
		TaskID:    task.ID,
		TaskType:  task.Type,
		Status:    string(domain.TaskStatusCompleted),
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
}

// NewTaskFailed builds a generation_failed event carrying the error message.
func NewTaskFailed(task *domain.Task, errorMessage string) TaskEvent {
	return TaskEvent{
		Type:      EventGenerationFailed,
		TaskID:    task.ID,
		TaskType:  task.Type,
		Status:    string(domain.TaskStatusFailed),
		Error:     errorMessage,
		Timestamp: time.Now().UTC(),
	}
}
