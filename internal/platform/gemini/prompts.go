package gemini

import (
	"fmt"
	"strings"

	"github.com/storyforge/storyforge-api/internal/domain"
)

// Prompts identify work by the task's correlation reference; the actual
// manuscript context lives with the project the correlation ID points at
// and is resolved by the model-facing tier above this core.

func bookPrompt(task *domain.Task) string {
	return fmt.Sprintf(
		"Draft a complete book outline for project %s: working title, premise, and a chapter-by-chapter summary.",
		task.CorrelationID)
}

func chapterPrompt(task *domain.Task) string {
	return fmt.Sprintf(
		"Write the next chapter for project %s, continuing from the outline and matching the established narrative voice.",
		task.CorrelationID)
}

func stylePrompt(task *domain.Task) string {
	return fmt.Sprintf(
		"Analyze the writing samples for project %s and produce a style profile: tone, sentence rhythm, vocabulary, and recurring devices.",
		task.CorrelationID)
}

func narrationPrompt(task *domain.Task) string {
	return fmt.Sprintf(
		"Produce a narration script for project %s: chapter text annotated with pacing, emphasis, and pause markers for audiobook recording.",
		task.CorrelationID)
}

func coverPrompt(task *domain.Task) string {
	return fmt.Sprintf(
		"Book cover illustration for project %s, no text or typography, print-quality composition.",
		task.CorrelationID)
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
