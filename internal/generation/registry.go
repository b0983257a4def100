package generation

import (
	"context"
	"fmt"

	"github.com/storyforge/storyforge-api/internal/domain"
)

// Registry maps task types to their executors. Registration happens once
// at startup; after that the registry is read-only and safe for
// concurrent dispatch.
type Registry struct {
	executors map[domain.TaskType]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[domain.TaskType]Executor),
	}
}

// Register binds an executor to a task type. Registering the same type
// twice is a programming error and panics.
// ALLOW-PANIC: Startup wiring error, not a runtime condition
func (r *Registry) Register(taskType domain.TaskType, executor Executor) {
	if executor == nil {
		panic(fmt.Sprintf("generation: nil executor for task type %q", taskType))
	}
	if _, exists := r.executors[taskType]; exists {
		panic(fmt.Sprintf("generation: executor already registered for task type %q", taskType))
	}
	r.executors[taskType] = executor
}

// Dispatch runs the executor registered for the task's type.
// Returns ErrUnknownTaskType if no executor is registered for it.
func (r *Registry) Dispatch(ctx context.Context, task *domain.Task) (Result, error) {
	executor, ok := r.executors[task.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, task.Type)
	}

	return executor.Execute(ctx, task)
}
