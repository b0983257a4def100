package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"google.golang.org/genai"

	"github.com/storyforge/storyforge-api/internal/config"
	"github.com/storyforge/storyforge-api/internal/domain"
	"github.com/storyforge/storyforge-api/internal/generation"
)

// imageModel is used for cover art; text task types use the configured
// model.
const imageModel = "imagen-3.0-generate-002"

// Generator produces book content through Google's Gemini API. One
// Generator backs the executors for every task type; the genai client is
// safe for concurrent use by scheduler workers.
type Generator struct {
	logger *slog.Logger
	client *genai.Client
	model  string

	maxRetries        int
	retryDelaySeconds int
}

// NewGenerator creates a Generator from LLM configuration.
// Returns generation.ErrInvalidConfig if the API key or model name is
// missing.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return &Generator{
		logger:            logger,
		client:            client,
		model:             cfg.ModelName,
		maxRetries:        3,
		retryDelaySeconds: 2,
	}, nil
}

// RegisterAll binds an executor for every supported task type.
func (g *Generator) RegisterAll(registry *generation.Registry) {
	registry.Register(domain.TaskTypeBook, generation.ExecutorFunc(g.generateBook))
	registry.Register(domain.TaskTypeChapter, generation.ExecutorFunc(g.generateChapter))
	registry.Register(domain.TaskTypeStyleTraining, generation.ExecutorFunc(g.trainStyle))
	registry.Register(domain.TaskTypeAudiobook, generation.ExecutorFunc(g.generateAudiobook))
	registry.Register(domain.TaskTypeCoverArt, generation.ExecutorFunc(g.generateCoverArt))
}

func (g *Generator) generateBook(ctx context.Context, task *domain.Task) (generation.Result, error) {
	text, err := g.generateText(ctx, bookPrompt(task))
	if err != nil {
		return nil, err
	}
	return generation.Result{
		"kind":       "book_outline",
		"content":    text,
		"word_count": wordCount(text),
	}, nil
}

func (g *Generator) generateChapter(ctx context.Context, task *domain.Task) (generation.Result, error) {
	text, err := g.generateText(ctx, chapterPrompt(task))
	if err != nil {
		return nil, err
	}
	return generation.Result{
		"kind":       "chapter",
		"content":    text,
		"word_count": wordCount(text),
	}, nil
}

func (g *Generator) trainStyle(ctx context.Context, task *domain.Task) (generation.Result, error) {
	text, err := g.generateText(ctx, stylePrompt(task))
	if err != nil {
		return nil, err
	}
	return generation.Result{
		"kind":          "style_profile",
		"style_profile": text,
	}, nil
}

func (g *Generator) generateAudiobook(ctx context.Context, task *domain.Task) (generation.Result, error) {
	text, err := g.generateText(ctx, narrationPrompt(task))
	if err != nil {
		return nil, err
	}
	return generation.Result{
		"kind":             "narration_script",
		"narration_script": text,
	}, nil
}

// generateCoverArt uses the image model rather than the configured text
// model.
func (g *Generator) generateCoverArt(ctx context.Context, task *domain.Task) (generation.Result, error) {
	var imageBytes []byte

	err := g.withRetry(ctx, "generate_images", func(ctx context.Context) (bool, error) {
		resp, err := g.client.Models.GenerateImages(ctx, imageModel, coverPrompt(task), &genai.GenerateImagesConfig{
			NumberOfImages: 1,
		})
		if err != nil {
			return true, fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
		}
		if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
			return false, fmt.Errorf("%w: no image generated", generation.ErrGenerationFailed)
		}

		imageBytes = resp.GeneratedImages[0].Image.ImageBytes
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	return generation.Result{
		"kind":        "cover_art",
		"image_bytes": len(imageBytes),
		"mime_type":   "image/png",
	}, nil
}

// generateText runs one text prompt against the configured model with
// retry, returning the concatenated response text.
func (g *Generator) generateText(ctx context.Context, prompt string) (string, error) {
	var text string

	err := g.withRetry(ctx, "generate_content", func(ctx context.Context) (bool, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err != nil {
			return true, fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return false, fmt.Errorf("%w: empty response", generation.ErrGenerationFailed)
		}
		if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
			return false, fmt.Errorf("%w: blocked by safety filters", generation.ErrContentBlocked)
		}

		text = resp.Text()
		if text == "" {
			return false, fmt.Errorf("%w: no text in response", generation.ErrGenerationFailed)
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}

	return text, nil
}

// withRetry calls fn with exponential backoff and jitter. fn reports
// whether its error is transient; permanent errors and context
// cancellation end the attempts immediately.
func (g *Generator) withRetry(ctx context.Context, operation string, fn func(ctx context.Context) (bool, error)) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		transient, err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		g.logger.WarnContext(ctx, "gemini call failed",
			"operation", operation,
			"attempt", attempt+1,
			"max_attempts", g.maxRetries+1,
			"transient", transient,
			"error", err)

		if !transient || attempt == g.maxRetries {
			return err
		}

		// delay = baseDelay * 2^attempt * jitter in [0.5, 1.0)
		backoff := float64(g.retryDelaySeconds) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5) * float64(time.Second))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}

	return lastErr
}
