package generatesceneassets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "finlit-workers/internal/common/errors"
	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/common/metrics"
	"finlit-workers/internal/common/storage"
	"finlit-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	TaskType = "generate-scene-assets"

	// ImageStyleSuffix is appended to every scene illustration prompt.
	ImageStyleSuffix = ". Explicit instruction: cartoon style, used for kids, be family friendly"
)

var ErrInvalidInput = errors.New("INVALID_INPUT")

// ImageGenerator renders an illustration for a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// SpeechSynthesizer narrates text.
type SpeechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}

type Handler struct {
	config *Config
	images ImageGenerator
	speech SpeechSynthesizer
	store  storage.AssetStore
	logger logger.Logger
}

// NewHandler builds the asset fan-out. A nil store embeds assets as data URIs.
func NewHandler(config *Config, images ImageGenerator, speech SpeechSynthesizer, store storage.AssetStore, log logger.Logger) *Handler {
	if store == nil {
		store = storage.DataURIStore{}
	}
	return &Handler{
		config: config,
		images: images,
		speech: speech,
		store:  store,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
	if input.Story == nil || len(input.Story.Scenes) == 0 {
		return nil, fmt.Errorf("%w: story with scenes is required", ErrInvalidInput)
	}
	if input.BookID != "" {
		input.Story.ID = input.BookID
	}

	report := h.AttachAssets(ctx, input.Story)
	return &Output{Story: input.Story, Report: report}, nil
}

// AttachAssets generates an illustration and a narration for every scene
// and writes the URLs of the successful ones into story. A story without an
// id is given one, since object keys are derived from it.
func (h *Handler) AttachAssets(ctx context.Context, story *models.Story) AssetReport {
	if story.ID == "" {
		story.ID = uuid.NewString()
	}

	requests := BuildRequests(story)
	started := time.Now()
	results := h.Dispatch(ctx, story.ID, requests)
	report := Merge(story, results)

	h.logger.Info("scene assets attached", map[string]interface{}{
		"bookId":    story.ID,
		"requested": report.Requested,
		"succeeded": report.Succeeded,
		"failed":    len(report.Failed),
		"duration":  time.Since(started).String(),
	})
	for _, f := range report.Failed {
		h.logger.Warn("scene asset failed", map[string]interface{}{
			"bookId":   story.ID,
			"sceneId":  f.SceneID,
			"modality": string(f.Modality),
			"kind":     string(f.Kind),
			"detail":   f.Detail,
		})
	}
	return report
}

// BuildRequests emits one image and one voice request per scene, in scene order.
func BuildRequests(story *models.Story) []models.AssetRequest {
	requests := make([]models.AssetRequest, 0, 2*len(story.Scenes))
	for _, sc := range story.Scenes {
		description := strings.TrimSpace(sc.ImgDescription)
		if description == "" {
			description = sc.Content
		}
		requests = append(requests,
			models.AssetRequest{SceneID: sc.SceneID, Modality: models.ModalityImage, Prompt: description + ImageStyleSuffix},
			models.AssetRequest{SceneID: sc.SceneID, Modality: models.ModalityVoice, Prompt: sc.Content},
		)
	}
	return requests
}

// Dispatch runs every request concurrently and waits for all of them to
// settle. results[i] always belongs to requests[i].
func (h *Handler) Dispatch(ctx context.Context, bookID string, requests []models.AssetRequest) []models.AssetResult {
	results := make([]models.AssetResult, len(requests))

	var g errgroup.Group
	if h.config.MaxConcurrency > 0 {
		g.SetLimit(h.config.MaxConcurrency)
	}
	for i, req := range requests {
		g.Go(func() error {
			results[i] = models.AssetResult{Key: req.Key(), Result: h.run(ctx, bookID, req)}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (h *Handler) run(ctx context.Context, bookID string, req models.AssetRequest) models.Result[string] {
	if h.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.TaskTimeout)
		defer cancel()
	}

	result := h.produce(ctx, bookID, req)
	status := metrics.StatusSuccess
	if !result.IsOk() {
		status = metrics.StatusError
	}
	metrics.AssetTasks.WithLabelValues(string(req.Modality), status).Inc()
	return result
}

func (h *Handler) produce(ctx context.Context, bookID string, req models.AssetRequest) models.Result[string] {
	asset, err := h.generate(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.Err[string](models.ErrKindTimeout, err.Error())
		}
		return models.Err[string](models.ErrKindGeneration, err.Error())
	}

	key := storage.ObjectKey(bookID, req.SceneID, string(req.Modality), asset.Extension)
	url, err := h.store.Upload(ctx, key, asset.ContentType, asset.Data)
	if err != nil {
		return models.Err[string](models.ErrKindUpload, err.Error())
	}
	return models.Ok(url)
}

func (h *Handler) generate(ctx context.Context, req models.AssetRequest) (models.Asset, error) {
	switch req.Modality {
	case models.ModalityImage:
		data, err := h.images.GenerateImage(ctx, req.Prompt)
		if err != nil {
			return models.Asset{}, err
		}
		return models.Asset{Data: data, ContentType: "image/png", Extension: "png"}, nil
	case models.ModalityVoice:
		data, err := h.speech.SynthesizeSpeech(ctx, req.Prompt)
		if err != nil {
			return models.Asset{}, err
		}
		return models.Asset{Data: data, ContentType: "audio/mpeg", Extension: "mp3"}, nil
	default:
		return models.Asset{}, fmt.Errorf("unknown modality %q", req.Modality)
	}
}

// Merge writes successful results into their scenes in one pass. A failed
// result leaves its field untouched.
func Merge(story *models.Story, results []models.AssetResult) AssetReport {
	report := AssetReport{Requested: len(results), Failed: []AssetFailure{}}
	written := make(map[models.AssetKey]bool, len(results))

	for _, res := range results {
		if !res.Result.IsOk() {
			report.Failed = append(report.Failed, AssetFailure{
				SceneID:  res.Key.SceneID,
				Modality: res.Key.Modality,
				Kind:     res.Result.Err.Kind,
				Detail:   res.Result.Err.Detail,
			})
			continue
		}
		sc, ok := story.Scene(res.Key.SceneID)
		if !ok || written[res.Key] {
			continue
		}
		url := res.Result.Value
		switch res.Key.Modality {
		case models.ModalityImage:
			sc.ImgURL = &url
		case models.ModalityVoice:
			sc.VoiceURL = &url
		default:
			continue
		}
		written[res.Key] = true
		report.Succeeded++
	}
	return report
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
	if errors.Is(err, ErrInvalidInput) {
		stdErr = apperrors.NewInvalidInputError(err.Error())
	} else {
		stdErr = apperrors.NewAssetGenerationFailedError(err.Error())
	}
	apperrors.NewErrorHandler(h.logger).HandleJobError(context.Background(), client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
