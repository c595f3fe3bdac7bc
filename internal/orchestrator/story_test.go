package orchestrator

import (
	"context"
	"errors"
	"testing"

	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/models"
	generatesceneassets "finlit-workers/internal/workers/story/generate-scene-assets"
	generatestory "finlit-workers/internal/workers/story/generate-story"
	notifystoryready "finlit-workers/internal/workers/story/notify-story-ready"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	err     error
	gotMeta generatestory.StoryMeta
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, meta generatestory.StoryMeta) (*models.Story, error) {
	f.gotMeta = meta
	if f.err != nil {
		return nil, f.err
	}
	return &models.Story{
		UserID:   meta.UserID,
		Title:    "Celengan Ayam",
		Language: meta.Language,
		Status:   models.StoryInProgress,
		Scenes: []models.Scene{
			{SceneID: 1, Type: models.SceneEnding, Content: "Tamat."},
		},
	}, nil
}

type fakeAttacher struct {
	calls int
}

func (f *fakeAttacher) AttachAssets(_ context.Context, story *models.Story) generatesceneassets.AssetReport {
	f.calls++
	story.ID = "book-1"
	return generatesceneassets.AssetReport{
		Requested: 2,
		Succeeded: 1,
		Failed: []generatesceneassets.AssetFailure{
			{SceneID: 1, Modality: models.ModalityVoice, Kind: models.ErrKindTimeout},
		},
	}
}

type fakePersister struct {
	err   error
	saved *models.Story
}

func (f *fakePersister) Persist(_ context.Context, story *models.Story) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = story
	return story.ID, nil
}

type fakeNotifier struct {
	err error
	got *notifystoryready.Input
}

func (f *fakeNotifier) Notify(_ context.Context, input *notifystoryready.Input) (*notifystoryready.Output, error) {
	f.got = input
	return &notifystoryready.Output{}, f.err
}

type storyFixture struct {
	retriever *fakeRetriever
	assembler *fakeAssembler
	generator *fakeGenerator
	assets    *fakeAttacher
	books     *fakePersister
	notifier  *fakeNotifier
}

func newStoryFixture() *storyFixture {
	return &storyFixture{
		retriever: &fakeRetriever{},
		assembler: &fakeAssembler{},
		generator: &fakeGenerator{},
		assets:    &fakeAttacher{},
		books:     &fakePersister{},
		notifier:  &fakeNotifier{},
	}
}

func (f *storyFixture) orchestrator(t *testing.T) *StoryOrchestrator {
	return NewStoryOrchestrator(f.retriever, f.assembler, f.generator, f.assets, f.books, f.notifier, nil, logger.NewTestLogger(t))
}

func storyRequest() StoryRequest {
	return StoryRequest{
		UserID:         "user-1",
		ChildID:        "adi_123",
		Prompt:         "Cerita tentang menabung untuk membeli sepeda",
		Age:            5,
		Language:       models.LanguageEnglish,
		CaregiverEmail: "ibu@example.com",
	}
}

func TestStory_Create(t *testing.T) {
	f := newStoryFixture()

	result, err := f.orchestrator(t).Create(context.Background(), storyRequest())

	require.NoError(t, err)
	assert.Equal(t, Trace{StateRequested, StateContextRetrieved, StatePromptAssembled, StateStoryGenerated, StateAssetsAttached, StatePersisted, StateDone}, result.Trace)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, "book-1", result.BookID)
	assert.Len(t, result.Assets.Failed, 1)
	assert.Same(t, result.Story, f.books.saved)

	assert.Equal(t, generatestory.StoryMeta{UserID: "user-1", ChildID: "adi_123", Age: 5, Language: models.LanguageEnglish}, f.generator.gotMeta)
	require.NotNil(t, f.retriever.gotAge)
	assert.Equal(t, 5, *f.retriever.gotAge)

	require.NotNil(t, f.notifier.got)
	assert.Equal(t, &notifystoryready.Input{
		BookID:         "book-1",
		UserID:         "user-1",
		Title:          "Celengan Ayam",
		CaregiverEmail: "ibu@example.com",
	}, f.notifier.got)
}

func TestStory_DefaultLanguage(t *testing.T) {
	f := newStoryFixture()
	req := storyRequest()
	req.Language = ""

	_, err := f.orchestrator(t).Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.LanguageIndonesian, f.generator.gotMeta.Language)
}

func TestStory_NotificationFailureIsNotFatal(t *testing.T) {
	f := newStoryFixture()
	f.notifier.err = errors.New("sns down")

	result, err := f.orchestrator(t).Create(context.Background(), storyRequest())
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
}

func TestStory_WithoutNotifier(t *testing.T) {
	f := newStoryFixture()
	o := NewStoryOrchestrator(f.retriever, f.assembler, f.generator, f.assets, f.books, nil, nil, logger.NewTestLogger(t))

	result, err := o.Create(context.Background(), storyRequest())
	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
}

func TestStory_Failures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *storyFixture)
		wantErr   error
		wantTrace Trace
		assets    int
	}{
		{
			name:      "assembly",
			setup:     func(f *storyFixture) { f.assembler.err = errors.New("template missing") },
			wantTrace: Trace{StateRequested, StateContextRetrieved, StateFailed},
		},
		{
			name:      "generation",
			setup:     func(f *storyFixture) { f.generator.err = generatestory.ErrStoryValidationFailed },
			wantErr:   generatestory.ErrStoryValidationFailed,
			wantTrace: Trace{StateRequested, StateContextRetrieved, StatePromptAssembled, StateFailed},
		},
		{
			name:      "persistence",
			setup:     func(f *storyFixture) { f.books.err = errors.New("insert failed") },
			wantTrace: Trace{StateRequested, StateContextRetrieved, StatePromptAssembled, StateStoryGenerated, StateAssetsAttached, StateFailed},
			assets:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStoryFixture()
			tt.setup(f)

			result, err := f.orchestrator(t).Create(context.Background(), storyRequest())

			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			require.NotNil(t, result)
			assert.Equal(t, StateFailed, result.State)
			assert.Equal(t, tt.wantTrace, result.Trace)
			assert.Equal(t, tt.assets, f.assets.calls)
			assert.Nil(t, f.notifier.got)
		})
	}
}

func TestStory_InvalidRequest(t *testing.T) {
	o := newStoryFixture().orchestrator(t)

	req := storyRequest()
	req.Prompt = " "
	_, err := o.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = storyRequest()
	req.Language = "klingon"
	_, err = o.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
