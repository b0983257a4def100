package gemini

import (
	"context"
	"fmt"

	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/generation"
)

// StubGenerator produces deterministic placeholder results without
// calling any external API. Used for local runs and CI where no Gemini
// key is configured.
type StubGenerator struct{}

// RegisterAll binds a stub executor for every supported task type.
func (StubGenerator) RegisterAll(registry *generation.Registry) {
	for _, taskType := range []domain.TaskType{
		domain.TaskTypeBook,
		domain.TaskTypeChapter,
		domain.TaskTypeStyleTraining,
		domain.TaskTypeAudiobook,
		domain.TaskTypeCoverArt,
	} {
		registry.Register(taskType, generation.ExecutorFunc(stubExecute))
	}
}

func stubExecute(ctx context.Context, task *domain.Task) (generation.Result, error) {
	return generation.Result{
		"kind":    "stub",
		"content": fmt.Sprintf("stub %s output for project %s", task.Type, task.CorrelationID),
	}, nil
}
