package assemblecontext

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "finlit-workers/internal/common/errors"
	"finlit-workers/internal/models"
	"finlit-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "assemble-context"

	// DocumentSeparator sits between reference documents.
	DocumentSeparator = "\n---\n"
)

var (
	ErrInvalidInput          = errors.New("INVALID_INPUT")
	ErrContextAssemblyFailed = errors.New("CONTEXT_ASSEMBLY_FAILED")
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Handler struct {
	config    *Config
	templates *registry.Registry
	logger    Logger
}

func NewHandler(config *Config, templates *registry.Registry, log Logger) *Handler {
	return &Handler{
		config:    config,
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

	output, err := h.execute(&input)
	if err != nil {
		h.failJob(client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(input *Input) (*Output, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}

	switch input.Mode {
	case ModeChat:
		var intent models.Intent = models.GeneralIntent{}
		if input.Intent != nil {
			intent = input.Intent.Decode()
		}
		return h.AssembleChat(input.Query, input.ChildID, intent, input.BackendData, input.Documents)
	case ModeStory:
		return h.AssembleStory(input.Query, input.UserID, input.Age, input.Language, input.Documents)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, input.Mode)
	}
}

// AssembleChat renders the chat-analysis prompt. Backend data is included
// verbatim for performance intents; otherwise the no-data status is used.
func (h *Handler) AssembleChat(query, childID string, intent models.Intent, backend models.BackendResult, docs []models.PrioritizedDocument) (*Output, error) {
	data, err := BackendSection(intent, backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextAssemblyFailed, err)
	}
	reference, dropped := h.reference(docs)

	return h.render(registry.ChatAnalysis, reference, dropped, map[string]string{
		"query":         query,
		"child_id":      childID,
		"intent":        string(intent.Tag()),
		"backend_data":  data,
		"reference":     reference,
		"output_format": AnalysisOutputFormat,
	})
}

// AssembleStory renders the story-generation prompt with the structural
// rule for age.
func (h *Handler) AssembleStory(query, userID string, age int, language models.Language, docs []models.PrioritizedDocument) (*Output, error) {
	if language == "" {
		language = models.LanguageIndonesian
	}
	if !language.Valid() {
		return nil, fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, language)
	}
	format, err := StoryOutputFormat(userID, age, language)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextAssemblyFailed, err)
	}
	reference, dropped := h.reference(docs)

	return h.render(registry.StoryGeneration, reference, dropped, map[string]string{
		"query":           query,
		"user_id":         userID,
		"age_group":       strconv.Itoa(age),
		"language":        string(language),
		"structure_rules": models.StructuralRuleFor(age).Instructions,
		"reference":       reference,
		"output_format":   format,
	})
}

func (h *Handler) reference(docs []models.PrioritizedDocument) (string, int) {
	reference, dropped := ReferenceSection(docs, h.config.MaxReferenceChars)
	if dropped > 0 {
		h.logger.Warn("reference documents dropped over budget", map[string]interface{}{
			"dropped":  dropped,
			"provided": len(docs),
			"limit":    h.config.MaxReferenceChars,
		})
	}
	return reference, dropped
}

func (h *Handler) render(name, reference string, dropped int, values map[string]string) (*Output, error) {
	tpl, err := h.templates.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextAssemblyFailed, err)
	}
	prompt, err := tpl.Render(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextAssemblyFailed, err)
	}

	h.logger.Info("context assembled", map[string]interface{}{
		"template":     tpl.Name(),
		"version":      tpl.Version(),
		"promptLength": len(prompt),
		"hasReference": reference != models.RetrievalPlaceholder,
	})
	return &Output{
		Prompt:          prompt,
		Template:        tpl.Name(),
		TemplateVersion: tpl.Version(),
		Reference:       reference,
		Dropped:         dropped,
	}, nil
}

// ReferenceSection joins document contents in order, or returns the
// placeholder when there is nothing to join. Whole documents are dropped
// from the tail once maxChars is reached; the first one is always kept.
// maxChars <= 0 means no limit. The second result counts the non-blank
// documents left out.
func ReferenceSection(docs []models.PrioritizedDocument, maxChars int) (string, int) {
	parts := make([]string, 0, len(docs))
	size, dropped := 0, 0
	for _, d := range docs {
		text := strings.TrimSpace(d.Document.Content)
		if text == "" {
			continue
		}
		if dropped > 0 {
			dropped++
			continue
		}
		next := size + len(text)
		if len(parts) > 0 {
			next += len(DocumentSeparator)
		}
		if maxChars > 0 && len(parts) > 0 && next > maxChars {
			dropped++
			continue
		}
		parts = append(parts, text)
		size = next
	}
	if len(parts) == 0 {
		return models.RetrievalPlaceholder, 0
	}
	return strings.Join(parts, DocumentSeparator), dropped
}

// BackendSection serializes aggregator output as indented JSON. General
// intents and empty results become the no-data status object.
func BackendSection(intent models.Intent, backend models.BackendResult) (string, error) {
	data := backend
	switch intent.(type) {
	case models.PerformanceIntent:
		if len(data) == 0 {
			data = models.NoDataResult()
		}
	case models.GeneralIntent:
		data = models.NoDataResult()
	default:
		return "", fmt.Errorf("unsupported intent %T", intent)
	}
	return encodeIndented(data)
}

// AnalysisOutputFormat is the JSON shape requested from the chat completion.
const AnalysisOutputFormat = `{
  "summary": "<jawaban ringkas untuk orang tua>",
  "insights": ["<temuan penting dari data performa anak>"],
  "recommendations": ["<kegiatan yang disarankan untuk anak>"]
}`

// StoryOutputFormat is the story JSON skeleton shown to the completion model.
func StoryOutputFormat(userID string, age int, language models.Language) (string, error) {
	skeleton := map[string]interface{}{
		"user_id":       userID,
		"title":         "<judul cerita>",
		"themes":        []string{"<tema dari daftar literasi finansial>"},
		"language":      string(language),
		"status":        string(models.StoryInProgress),
		"age_group":     age,
		"current_scene": 1,
		"created_at":    nil,
		"finished_at":   nil,
		"maximum_point": "<jumlah poin maksimum (integer)>",
		"story_flow": map[string]interface{}{
			"total_scene":    0,
			"decision_point": []int{},
			"ending":         []int{},
		},
		"characters": []map[string]string{{
			"name":        "<nama karakter dalam bahasa Indonesia>",
			"description": "<deskripsi karakter dalam bahasa Inggris: ciri fisik, sifat, peran>",
		}},
		"scene": []interface{}{
			map[string]interface{}{
				"scene_id":        1,
				"type":            string(models.SceneNarrative),
				"img_url":         nil,
				"img_description": "<deskripsi gambar scene dalam bahasa Inggris>",
				"voice_url":       nil,
				"content":         "<isi cerita scene>",
				"next_scene":      "<scene_id berikutnya (integer)>",
			},
			map[string]interface{}{
				"scene_id":        2,
				"type":            string(models.SceneDecisionPoint),
				"img_url":         nil,
				"img_description": "<deskripsi gambar scene dalam bahasa Inggris>",
				"voice_url":       nil,
				"content":         "<situasi yang menuntut anak memilih>",
				"branch": []map[string]interface{}{
					{
						"choice":      "baik",
						"teks":        "<teks pilihan>",
						"moral_value": "<nilai moral pilihan>",
						"point":       "<poin pilihan (integer)>",
						"next_scene":  "<scene_id cabang (integer)>",
					},
					{
						"choice":      "buruk",
						"teks":        "<teks pilihan>",
						"moral_value": "<nilai moral pilihan>",
						"point":       "<poin pilihan (integer)>",
						"next_scene":  "<scene_id cabang (integer)>",
					},
				},
				"selected_choice": nil,
			},
			map[string]interface{}{
				"scene_id":        3,
				"type":            string(models.SceneEnding),
				"img_url":         nil,
				"img_description": "<deskripsi gambar scene dalam bahasa Inggris>",
				"voice_url":       nil,
				"content":         "<isi cerita penutup>",
				"lesson_learned":  "<pelajaran dari cerita>",
			},
		},
		"user_story": map[string]interface{}{
			"visited_scene": []int{},
			"choices":       []interface{}{},
			"total_point":   0,
			"finished_time": 0,
		},
	}
	return encodeIndented(skeleton)
}

func encodeIndented(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
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
	case errors.Is(err, registry.ErrTemplateNotFound):
		stdErr = apperrors.NewTemplateNotFoundError(err.Error())
	default:
		stdErr = apperrors.NewContextAssemblyFailedError(err.Error())
	}
	apperrors.NewErrorHandler(h.logger).HandleJobError(context.Background(), client, job, stdErr)
}

// Execute assembles a prompt. Assembly is pure, so ctx is unused.
func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	return h.execute(input)
}
