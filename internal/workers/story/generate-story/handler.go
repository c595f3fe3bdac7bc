package generatestory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "finlit-workers/internal/common/errors"
	"finlit-workers/internal/common/genai"
	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/common/validation"
	"finlit-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "generate-story"
)

var (
	ErrInvalidInput          = errors.New("INVALID_INPUT")
	ErrStoryGenerationFailed = errors.New("STORY_GENERATION_FAILED")
	ErrStoryValidationFailed = errors.New("STORY_VALIDATION_FAILED")
)

// Completer is the text completion capability.
type Completer interface {
	Complete(ctx context.Context, req genai.CompletionRequest) (string, error)
}

type Handler struct {
	config    *Config
	completer Completer
	logger    logger.Logger
	now       func() time.Time
}

func NewHandler(config *Config, completer Completer, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		completer: completer,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:       time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, fmt.Errorf("%w: parse input: %v", ErrInvalidInput, err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.UserID) == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}

	story, mismatch, err := h.generate(ctx, input.Prompt, StoryMeta{
		UserID:   input.UserID,
		ChildID:  input.ChildID,
		Age:      input.Age,
		Language: input.Language,
	})
	if err != nil {
		return nil, err
	}
	return &Output{Story: story, StructureMismatch: mismatch}, nil
}

// Generate completes prompt into a validated story stamped with meta.
func (h *Handler) Generate(ctx context.Context, prompt string, meta StoryMeta) (*models.Story, error) {
	story, _, err := h.generate(ctx, prompt, meta)
	return story, err
}

func (h *Handler) generate(ctx context.Context, prompt string, meta StoryMeta) (*models.Story, bool, error) {
	temperature := h.config.Temperature
	raw, err := h.completer.Complete(ctx, genai.CompletionRequest{
		Prompt:      prompt,
		JSON:        true,
		Temperature: &temperature,
		MaxTokens:   h.config.MaxTokens,
	})
	if err != nil {
		h.logger.Error("story completion failed", map[string]interface{}{
			"error":   err.Error(),
			"timeout": genai.IsTimeout(err),
		})
		return nil, false, fmt.Errorf("%w: %v", ErrStoryGenerationFailed, err)
	}

	story, err := Parse(raw)
	if err != nil {
		h.logger.Warn("generated story rejected", map[string]interface{}{
			"error":  err.Error(),
			"length": len(raw),
		})
		return nil, false, err
	}

	h.stamp(story, meta)

	mismatch := false
	rule := models.StructuralRuleFor(meta.Age)
	if len(story.Scenes) != rule.TotalScenes {
		mismatch = true
		h.logger.Warn("story does not follow the structural rule", map[string]interface{}{
			"rule":       rule.Name,
			"wantScenes": rule.TotalScenes,
			"gotScenes":  len(story.Scenes),
		})
	}

	h.logger.Info("story generated", map[string]interface{}{
		"title":        story.Title,
		"scenes":       len(story.Scenes),
		"maximumPoint": story.MaximumPoint,
	})
	return story, mismatch, nil
}

// Parse decodes and validates a completion as a story.
func Parse(raw string) (*models.Story, error) {
	body := validation.StripCodeFences(raw)
	if result := validation.StorySchema.ValidateBytes([]byte(body)); !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrStoryValidationFailed, result.Summary())
	}

	var story models.Story
	if err := json.Unmarshal([]byte(body), &story); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrStoryValidationFailed, err)
	}
	if err := story.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoryValidationFailed, err)
	}
	return &story, nil
}

func (h *Handler) stamp(story *models.Story, meta StoryMeta) {
	language := meta.Language
	if language == "" {
		language = models.LanguageIndonesian
	}
	created := h.now().UTC()

	story.UserID = meta.UserID
	story.ChildID = meta.ChildID
	story.Language = language
	story.Status = models.StoryInProgress
	story.CurrentScene = 1
	story.CreatedAt = &created
	story.FinishedAt = nil
	story.UserStory = models.UserStory{VisitedScene: []int{}, Choices: []models.ChoiceRecord{}}
	story.StoryFlow = story.DeriveFlow()
	if story.AgeGroup == "" && meta.Age > 0 {
		story.AgeGroup = models.AgeGroup(strconv.Itoa(meta.Age))
	}
	if story.MaximumPoint <= 0 {
		story.MaximumPoint = story.BestPathPoints()
	}
	if story.Themes == nil {
		story.Themes = []string{}
	}

	// Media and reader state are filled in later.
	for i := range story.Scenes {
		story.Scenes[i].ImgURL = nil
		story.Scenes[i].VoiceURL = nil
		story.Scenes[i].SelectedChoice = nil
	}
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	var stdErr *apperrors.StandardError
	switch {
	case errors.Is(err, ErrInvalidInput):
		stdErr = apperrors.NewInvalidInputError(err.Error())
	case errors.Is(err, ErrStoryValidationFailed):
		stdErr = apperrors.NewStoryValidationFailedError(err.Error())
	default:
		stdErr = apperrors.NewStoryGenerationFailedError(err)
	}
	apperrors.NewErrorHandler(h.logger).HandleJobError(context.Background(), client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
