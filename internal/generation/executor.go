package generation

import (
	"context"

	"github.com/storyforge/storyforge-api/internal/domain"
)

// Result is the structured payload an executor produces on success. It is
// stored on the task as opaque result metadata and pushed to the owner's
// live connections.
type Result map[string]any

// Executor runs one kind of generation work. Implementations receive the
// full task for its correlation data and must honor ctx cancellation: the
// scheduler bounds every execution with a deadline.
type Executor interface {
	// Execute performs the generation and returns a structured result
	// payload, or a descriptive error. Executors perform no retries;
	// a returned error permanently fails the task.
	Execute(ctx context.Context, task *domain.Task) (Result, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *domain.Task) (Result, error)

// Execute implements the Executor interface.
func (f ExecutorFunc) Execute(ctx context.Context, task *domain.Task) (Result, error) {
	return f(ctx, task)
}
