// internal/workers/ai-conversation/llm-synthesis/handler.go
package llmsynthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "finlit-workers/internal/common/errors"
	"finlit-workers/internal/common/genai"
	"finlit-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "llm-synthesis"

	// SafeMessage replaces the answer whenever completion fails.
	SafeMessage = "Maaf, kami belum dapat memproses pertanyaan Anda saat ini. Silakan coba lagi nanti."
)

var (
	ErrInvalidInput       = errors.New("INVALID_INPUT")
	ErrLLMTimeout         = errors.New("LLM_TIMEOUT")
	ErrLLMSynthesisFailed = errors.New("LLM_SYNTHESIS_FAILED")
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
	logger    Logger
}

func NewHandler(config *Config, completer Completer, log Logger) *Handler {
	return &Handler{
		config:    config,
		completer: completer,
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
		// Retry while Camunda still has attempts left; the last attempt
		// completes with the safe message instead of failing the process.
		if errors.Is(err, ErrInvalidInput) || job.Retries > 1 {
			h.failJob(client, job, err)
			return
		}
		h.logger.Warn("completion failed on last attempt, answering with safe message", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		output = &Output{Answer: SafeMessage, Fallback: true}
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}

	text, err := h.Complete(ctx, input.Prompt)
	if err != nil {
		return nil, err
	}

	output := &Output{Answer: text}
	if h.config.ParseAnalysis {
		if analysis, ok := h.ParseAnalysis(text); ok {
			output.Analysis = analysis
			output.Answer = analysis.Summary
		}
	}

	h.logger.Info("LLM synthesis completed", map[string]interface{}{
		"answerLength": len(output.Answer),
		"structured":   output.Analysis != nil,
	})
	return output, nil
}

// Complete returns the completion text for prompt. Errors carry the raw
// cause and must not reach end users; see Answer.
func (h *Handler) Complete(ctx context.Context, prompt string) (string, error) {
	req := genai.CompletionRequest{
		Prompt:    prompt,
		MaxTokens: h.config.MaxTokens,
	}
	if h.config.Temperature > 0 {
		temperature := h.config.Temperature
		req.Temperature = &temperature
	}

	text, err := h.completer.Complete(ctx, req)
	switch {
	case err == nil && strings.TrimSpace(text) == "":
		return "", fmt.Errorf("%w: %v", ErrLLMSynthesisFailed, genai.ErrEmptyCompletion)
	case err == nil:
		return strings.TrimSpace(text), nil
	case genai.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "", fmt.Errorf("%w: %v", ErrLLMTimeout, err)
	default:
		return "", fmt.Errorf("%w: %v", ErrLLMSynthesisFailed, err)
	}
}

// Answer completes prompt and never fails: completion errors are logged and
// replaced by SafeMessage. The bool reports whether the fallback was used.
func (h *Handler) Answer(ctx context.Context, prompt string) (*Output, bool) {
	output, err := h.execute(ctx, &Input{Prompt: prompt})
	if err != nil {
		h.logger.Error("completion failed", map[string]interface{}{
			"error": err.Error(),
		})
		return &Output{Answer: SafeMessage, Fallback: true}, true
	}
	return output, false
}

// ParseAnalysis decodes text as the chat analysis object. Free-form answers
// report false.
func (h *Handler) ParseAnalysis(text string) (*Analysis, bool) {
	body := validation.StripCodeFences(text)
	if !strings.HasPrefix(body, "{") {
		return nil, false
	}
	if result := validation.AnalysisSchema.ValidateBytes([]byte(body)); !result.Valid {
		h.logger.Warn("analysis output rejected", map[string]interface{}{
			"violations": result.Summary(),
		})
		return nil, false
	}
	var analysis Analysis
	if err := json.Unmarshal([]byte(body), &analysis); err != nil {
		return nil, false
	}
	if strings.TrimSpace(analysis.Summary) == "" {
		return nil, false
	}
	return &analysis, true
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
	case errors.Is(err, ErrLLMTimeout):
		stdErr = apperrors.NewLLMTimeoutError()
	default:
		stdErr = apperrors.NewLLMSynthesisFailedError(err)
	}
	apperrors.NewErrorHandler(h.logger).HandleJobError(context.Background(), client, job, stdErr)
}

// Execute method for direct usage
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
