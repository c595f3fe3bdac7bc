package classifyintent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "finlit-workers/internal/common/errors"
	"finlit-workers/internal/common/genai"
	"finlit-workers/internal/common/metrics"
	"finlit-workers/internal/common/validation"
	"finlit-workers/internal/models"
	"finlit-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "classify-intent"
)

// Reasons attached to a GeneralIntent produced by a fallback path.
const (
	ReasonParseFallback   = "JSON parsing error fallback."
	ReasonGeneralFallback = "General error fallback."
	ReasonDefaultFallback = "Default fallback."
)

var (
	ErrInvalidInput = errors.New("INVALID_INPUT")
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Completer is the text completion capability.
type Completer interface {
	Complete(ctx context.Context, req genai.CompletionRequest) (string, error)
}

type Handler struct {
	config    *Config
	completer Completer
	templates *registry.Registry
	logger    Logger
}

func NewHandler(config *Config, completer Completer, templates *registry.Registry, log Logger) *Handler {
	return &Handler{
		config:    config,
		completer: completer,
		templates: templates,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
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
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.ChildID) == "" {
		return nil, fmt.Errorf("%w: childId is required", ErrInvalidInput)
	}

	intent, fallback := h.classify(ctx, input.Query, input.ChildID)
	return &Output{
		Intent:   models.EncodeIntent(intent),
		Fallback: fallback,
	}, nil
}

// Classify never fails: every error path degrades to a GeneralIntent
// carrying the fallback reason.
func (h *Handler) Classify(ctx context.Context, query, childID string) models.Intent {
	intent, _ := h.classify(ctx, query, childID)
	return intent
}

func (h *Handler) classify(ctx context.Context, query, childID string) (models.Intent, bool) {
	intent, fallback := h.resolve(ctx, query, childID)
	metrics.IntentClassifications.WithLabelValues(string(intent.Tag()), metrics.BoolLabel(fallback)).Inc()

	fields := map[string]interface{}{
		"childId":  childID,
		"intent":   string(intent.Tag()),
		"fallback": fallback,
	}
	if p, ok := intent.(models.PerformanceIntent); ok {
		fields["apiTypes"] = []string(p.Detail.APITypes)
		fields["themes"] = []string(p.Detail.Themes)
	}
	h.logger.Info("intent classified", fields)
	return intent, fallback
}

func (h *Handler) resolve(ctx context.Context, query, childID string) (models.Intent, bool) {
	themes, _ := json.Marshal(models.Themes)
	prompt, err := h.templates.Render(registry.IntentClassification, map[string]string{
		"themes":   string(themes),
		"query":    query,
		"child_id": childID,
	})
	if err != nil {
		h.logger.Error("failed to render classification prompt", map[string]interface{}{"error": err.Error()})
		return models.GeneralIntent{Reason: ReasonGeneralFallback}, true
	}

	temperature := h.config.Temperature
	raw, err := h.completer.Complete(ctx, genai.CompletionRequest{
		Prompt:      prompt,
		JSON:        true,
		Temperature: &temperature,
	})
	if err != nil {
		h.logger.Error("classification completion failed", map[string]interface{}{
			"error":   err.Error(),
			"timeout": genai.IsTimeout(err),
		})
		return models.GeneralIntent{Reason: ReasonGeneralFallback}, true
	}

	body := validation.StripCodeFences(raw)
	if result := validation.ClassificationSchema.ValidateBytes([]byte(body)); !result.Valid {
		h.logger.Warn("classification output rejected", map[string]interface{}{
			"violations": result.Summary(),
			"raw":        raw,
		})
		return models.GeneralIntent{Reason: ReasonParseFallback}, true
	}

	var envelope models.IntentEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		h.logger.Warn("classification output not decodable", map[string]interface{}{
			"error": err.Error(),
			"raw":   raw,
		})
		return models.GeneralIntent{Reason: ReasonParseFallback}, true
	}

	if envelope.APICallDetails != nil {
		envelope.APICallDetails.ChildID = childID
	}

	switch envelope.Intent {
	case models.IntentTagPerformanceData:
		if envelope.APICallDetails == nil {
			return models.GeneralIntent{Reason: ReasonDefaultFallback}, true
		}
		return models.PerformanceIntent{Detail: *envelope.APICallDetails}, false
	case models.IntentTagGeneral:
		return models.GeneralIntent{}, false
	default:
		h.logger.Warn("unknown intent tag", map[string]interface{}{"intent": string(envelope.Intent)})
		return models.GeneralIntent{Reason: ReasonDefaultFallback}, true
	}
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)

	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error) {
	var stdErr *apperrors.StandardError
	switch {
	case errors.Is(err, ErrInvalidInput):
		stdErr = apperrors.NewInvalidInputError(err.Error())
	default:
		stdErr = apperrors.NewIntentClassificationFailedError(err)
	}
	apperrors.NewErrorHandler(h.logger).HandleJobError(context.Background(), client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
