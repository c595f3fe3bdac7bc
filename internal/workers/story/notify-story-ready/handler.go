package notifystoryready

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"

	awsclient "finlit-workers/internal/common/aws"
	apperrors "finlit-workers/internal/common/errors"
	"finlit-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "notify-story-ready"

	EventStoryReady = "story.ready"

	emailSubject = "Cerita baru sudah siap dibaca"
)

var (
	ErrInvalidInput           = errors.New("INVALID_INPUT")
	ErrNotificationSendFailed = errors.New("NOTIFICATION_SEND_FAILED")
)

var emailTemplate = template.Must(template.New("story-ready").Parse(
	`<p>Halo!</p>
<p>Cerita <strong>{{.Title}}</strong> sudah selesai dibuat dan siap dibaca bersama si kecil.</p>
{{if .Link}}<p><a href="{{.Link}}">Baca sekarang</a></p>{{end}}`))

// EventPublisher publishes domain events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topicARN, event string, payload interface{}) (string, error)
}

// EmailSender delivers a single email.
type EmailSender interface {
	Send(ctx context.Context, e awsclient.Email) (string, error)
}

type Handler struct {
	config    *Config
	publisher EventPublisher
	email     EmailSender
	logger    logger.Logger
}

// NewHandler builds the notifier. publisher and email may be nil when the
// channel is disabled.
func NewHandler(config *Config, publisher EventPublisher, email EmailSender, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		publisher: publisher,
		email:     email,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
	if input.BookID == "" || input.UserID == "" {
		return nil, fmt.Errorf("%w: bookId and userId are required", ErrInvalidInput)
	}
	if input.CaregiverEmail != "" {
		if _, err := mail.ParseAddress(input.CaregiverEmail); err != nil {
			return nil, fmt.Errorf("%w: caregiverEmail: %v", ErrInvalidInput, err)
		}
	}
	return h.Notify(ctx, input)
}

// Notify announces a finished book on every enabled channel. Each channel is
// attempted even when another fails; the output reports what went out.
func (h *Handler) Notify(ctx context.Context, input *Input) (*Output, error) {
	output := &Output{}
	var errs []error

	if h.config.SNSEnabled && h.publisher != nil {
		id, err := h.publisher.PublishEvent(ctx, h.config.TopicARN, EventStoryReady, StoryReadyEvent{
			Event:  EventStoryReady,
			BookID: input.BookID,
			UserID: input.UserID,
			Title:  input.Title,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sns: %w", err))
		} else {
			output.Published = true
			output.EventMessageID = id
		}
	}

	if h.config.SESEnabled && h.email != nil && input.CaregiverEmail != "" {
		id, err := h.sendEmail(ctx, input)
		if err != nil {
			errs = append(errs, fmt.Errorf("ses: %w", err))
		} else {
			output.Emailed = true
			output.EmailMessageID = id
		}
	}

	h.logger.Info("story-ready notification processed", map[string]interface{}{
		"bookId":    input.BookID,
		"published": output.Published,
		"emailed":   output.Emailed,
		"failures":  len(errs),
	})
	if len(errs) > 0 {
		return output, fmt.Errorf("%w: %w", ErrNotificationSendFailed, errors.Join(errs...))
	}
	return output, nil
}

func (h *Handler) sendEmail(ctx context.Context, input *Input) (string, error) {
	link := ""
	if h.config.ReaderBaseURL != "" {
		link = strings.TrimRight(h.config.ReaderBaseURL, "/") + "/" + input.BookID
	}

	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, map[string]string{"Title": input.Title, "Link": link}); err != nil {
		return "", err
	}
	text := fmt.Sprintf("Cerita %q sudah siap dibaca.", input.Title)
	if link != "" {
		text += " " + link
	}

	return h.email.Send(ctx, awsclient.Email{
		From:    h.config.Sender,
		To:      input.CaregiverEmail,
		Subject: emailSubject,
		HTML:    body.String(),
		Text:    text,
	})
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
		stdErr = apperrors.NewNotificationSendFailedError("sns/ses", err)
	}
	apperrors.NewErrorHandler(h.logger).HandleJobError(context.Background(), client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
