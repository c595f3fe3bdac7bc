package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/common/observability"
	"finlit-workers/internal/models"
	assemblecontext "finlit-workers/internal/workers/ai-conversation/assemble-context"
	generatesceneassets "finlit-workers/internal/workers/story/generate-scene-assets"
	generatestory "finlit-workers/internal/workers/story/generate-story"
	notifystoryready "finlit-workers/internal/workers/story/notify-story-ready"
)

const storyPipeline = "story"

// Story states.
const (
	StateRequested        State = "Requested"
	StateContextRetrieved State = "ContextRetrieved"
	StatePromptAssembled  State = "PromptAssembled"
	StateStoryGenerated   State = "StoryGenerated"
	StateAssetsAttached   State = "AssetsAttached"
	StatePersisted        State = "Persisted"
)

type StoryAssembler interface {
	AssembleStory(query, userID string, age int, language models.Language, docs []models.PrioritizedDocument) (*assemblecontext.Output, error)
}

type StoryGenerator interface {
	Generate(ctx context.Context, prompt string, meta generatestory.StoryMeta) (*models.Story, error)
}

type AssetAttacher interface {
	AttachAssets(ctx context.Context, story *models.Story) generatesceneassets.AssetReport
}

type BookPersister interface {
	Persist(ctx context.Context, story *models.Story) (string, error)
}

type StoryNotifier interface {
	Notify(ctx context.Context, input *notifystoryready.Input) (*notifystoryready.Output, error)
}

type StoryRequest struct {
	UserID         string
	ChildID        string
	Prompt         string
	Age            int
	Language       models.Language
	CaregiverEmail string
}

type StoryResult struct {
	BookID string
	Story  *models.Story
	Assets generatesceneassets.AssetReport
	State  State
	Trace  Trace
}

type StoryOrchestrator struct {
	retriever ContextRetriever
	assembler StoryAssembler
	generator StoryGenerator
	assets    AssetAttacher
	books     BookPersister
	notifier  StoryNotifier
	stages    stageRunner
	logger    logger.Logger
}

// NewStoryOrchestrator wires the story pipeline. notifier and obs may be nil.
func NewStoryOrchestrator(
	retriever ContextRetriever,
	assembler StoryAssembler,
	generator StoryGenerator,
	assets AssetAttacher,
	books BookPersister,
	notifier StoryNotifier,
	obs *observability.Observability,
	log logger.Logger,
) *StoryOrchestrator {
	return &StoryOrchestrator{
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		assets:    assets,
		books:     books,
		notifier:  notifier,
		stages:    stageRunner{pipeline: storyPipeline, obs: obs},
		logger:    log.WithFields(map[string]interface{}{"pipeline": storyPipeline}),
	}
}

// Create generates, illustrates and stores a book. Failures to assemble,
// generate or persist end in StateFailed and are returned with the partial
// result; asset and notification failures do not fail the request.
func (o *StoryOrchestrator) Create(ctx context.Context, req StoryRequest) (*StoryResult, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" || req.UserID == "" {
		return nil, fmt.Errorf("%w: prompt and user id are required", ErrInvalidRequest)
	}
	if req.Language == "" {
		req.Language = models.LanguageIndonesian
	}
	if !req.Language.Valid() {
		return nil, fmt.Errorf("%w: unsupported language %q", ErrInvalidRequest, req.Language)
	}

	result := &StoryResult{}
	result.Trace.enter(StateRequested)
	fail := func(stage string, err error) (*StoryResult, error) {
		result.Trace.enter(StateFailed)
		result.State = StateFailed
		o.logger.Error("story pipeline failed", map[string]interface{}{
			"stage":  stage,
			"userId": req.UserID,
			"error":  err.Error(),
		})
		return result, fmt.Errorf("%s: %w", stage, err)
	}

	age := req.Age
	var docs []models.PrioritizedDocument
	_ = o.stages.run(ctx, "retrieve", func(ctx context.Context) error {
		docs = o.retriever.RetrieveContext(ctx, req.Prompt, &age)
		return nil
	})
	result.Trace.enter(StateContextRetrieved)

	var assembled *assemblecontext.Output
	err := o.stages.run(ctx, "assemble", func(context.Context) error {
		var err error
		assembled, err = o.assembler.AssembleStory(req.Prompt, req.UserID, req.Age, req.Language, docs)
		return err
	})
	if err != nil {
		return fail("assemble", err)
	}
	result.Trace.enter(StatePromptAssembled)

	err = o.stages.run(ctx, "generate", func(ctx context.Context) error {
		var err error
		result.Story, err = o.generator.Generate(ctx, assembled.Prompt, generatestory.StoryMeta{
			UserID:   req.UserID,
			ChildID:  req.ChildID,
			Age:      req.Age,
			Language: req.Language,
		})
		return err
	})
	if err != nil {
		return fail("generate", err)
	}
	result.Trace.enter(StateStoryGenerated)

	_ = o.stages.run(ctx, "assets", func(ctx context.Context) error {
		result.Assets = o.assets.AttachAssets(ctx, result.Story)
		return nil
	})
	result.Trace.enter(StateAssetsAttached)

	err = o.stages.run(ctx, "persist", func(ctx context.Context) error {
		var err error
		result.BookID, err = o.books.Persist(ctx, result.Story)
		return err
	})
	if err != nil {
		return fail("persist", err)
	}
	result.Trace.enter(StatePersisted)

	if o.notifier != nil {
		_ = o.stages.run(ctx, "notify", func(ctx context.Context) error {
			_, err := o.notifier.Notify(ctx, &notifystoryready.Input{
				BookID:         result.BookID,
				UserID:         req.UserID,
				Title:          result.Story.Title,
				CaregiverEmail: req.CaregiverEmail,
			})
			if err != nil {
				o.logger.Warn("story-ready notification failed", map[string]interface{}{
					"bookId": result.BookID,
					"error":  err.Error(),
				})
			}
			return err
		})
	}

	result.Trace.enter(StateDone)
	result.State = StateDone
	o.logger.Info("book created", map[string]interface{}{
		"bookId":       result.BookID,
		"userId":       req.UserID,
		"scenes":       len(result.Story.Scenes),
		"assetsFailed": len(result.Assets.Failed),
	})
	return result, nil
}
