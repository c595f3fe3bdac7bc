package persistbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "finlit-workers/internal/common/errors"
	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "persist-book"
)

var (
	ErrInvalidInput         = errors.New("INVALID_INPUT")
	ErrDatabaseInsertFailed = errors.New("DATABASE_INSERT_FAILED")
)

// BookCreator stores a new book and returns its id.
type BookCreator interface {
	Create(ctx context.Context, story *models.Story) (string, error)
}

type Handler struct {
	config *Config
	books  BookCreator
	logger logger.Logger
}

func NewHandler(config *Config, books BookCreator, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		books:  books,
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
	if input.Story == nil {
		return nil, fmt.Errorf("%w: story is required", ErrInvalidInput)
	}
	if input.Story.UserID == "" {
		return nil, fmt.Errorf("%w: story has no owner", ErrInvalidInput)
	}

	id, err := h.Persist(ctx, input.Story)
	if err != nil {
		return nil, err
	}
	return &Output{BookID: id, Title: input.Story.Title, UserID: input.Story.UserID}, nil
}

// Persist stores story as a new book.
func (h *Handler) Persist(ctx context.Context, story *models.Story) (string, error) {
	id, err := h.books.Create(ctx, story)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabaseInsertFailed, err)
	}
	h.logger.Info("book persisted", map[string]interface{}{
		"bookId": id,
		"userId": story.UserID,
		"scenes": len(story.Scenes),
	})
	return id, nil
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
		stdErr = apperrors.NewDatabaseInsertFailedError(err)
	}
	apperrors.NewErrorHandler(h.logger).HandleJobError(context.Background(), client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
