package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge-api/internal/domain"
)

func newTestTask(t *testing.T, taskType domain.TaskType) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(uuid.New(), taskType, 10, 0, uuid.New())
	require.NoError(t, err)
	return task
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches to registered executor", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(domain.TaskTypeChapter, ExecutorFunc(
			func(ctx context.Context, task *domain.Task) (Result, error) {
				return Result{"chapter_id": task.CorrelationID.String()}, nil
			}))

		task := newTestTask(t, domain.TaskTypeChapter)
		result, err := registry.Dispatch(ctx, task)
		require.NoError(t, err)
		assert.Equal(t, task.CorrelationID.String(), result["chapter_id"])
	})

	t.Run("propagates executor errors", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(domain.TaskTypeCoverArt, ExecutorFunc(
			func(ctx context.Context, task *domain.Task) (Result, error) {
				return nil, ErrContentBlocked
			}))

		_, err := registry.Dispatch(ctx, newTestTask(t, domain.TaskTypeCoverArt))
		assert.ErrorIs(t, err, ErrContentBlocked)
	})

	t.Run("unregistered type fails fast", func(t *testing.T) {
		registry := NewRegistry()

		_, err := registry.Dispatch(ctx, newTestTask(t, domain.TaskTypeAudiobook))
		assert.ErrorIs(t, err, ErrUnknownTaskType)
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		registry := NewRegistry()
		executor := ExecutorFunc(func(ctx context.Context, task *domain.Task) (Result, error) {
			return nil, errors.New("unused")
		})
		registry.Register(domain.TaskTypeBook, executor)

		assert.Panics(t, func() {
			registry.Register(domain.TaskTypeBook, executor)
		})
	})

	t.Run("nil executor panics", func(t *testing.T) {
		registry := NewRegistry()
		assert.Panics(t, func() {
			registry.Register(domain.TaskTypeBook, nil)
		})
	})
}
