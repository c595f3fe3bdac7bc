package fetchperformancedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	apperrors "finlit-workers/internal/common/errors"
	httpclient "finlit-workers/internal/common/http"
	"finlit-workers/internal/common/metrics"
	"finlit-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"golang.org/x/sync/errgroup"
)

const (
	TaskType = "fetch-performance-data"
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

// JSONGetter fetches a JSON document.
type JSONGetter interface {
	GetJSON(ctx context.Context, rawURL string) ([]byte, error)
}

type Handler struct {
	config *Config
	client JSONGetter
	logger Logger
}

func NewHandler(config *Config, log Logger) *Handler {
	opts := []httpclient.Option{httpclient.WithRetries(config.MaxRetries, config.RetryInterval)}
	if config.Token != "" {
		opts = append(opts, httpclient.WithBearerToken(config.Token))
	}
	return &Handler{
		config: config,
		client: httpclient.NewClient(config.CallTimeout, opts...),
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
	if input.Intent.Intent == "" {
		return nil, fmt.Errorf("%w: intent is required", ErrInvalidInput)
	}

	switch intent := input.Intent.Decode().(type) {
	case models.PerformanceIntent:
		return &Output{BackendData: h.Fetch(ctx, intent.Detail)}, nil
	case models.GeneralIntent:
		return &Output{BackendData: models.NoDataResult(), Skipped: true}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported intent %T", ErrInvalidInput, intent)
	}
}

// Fetch calls every requested endpoint kind concurrently and merges the
// outcomes in request order. A failed or unknown kind only produces its own
// "<kind>_error" entry.
func (h *Handler) Fetch(ctx context.Context, detail models.APICallDetail) models.BackendResult {
	kinds := dedupe(detail.APITypes)
	if len(kinds) == 0 {
		h.logger.Info("no endpoint kind requested", map[string]interface{}{"childId": detail.ChildID})
		return models.NoCallNeededResult()
	}
	if _, dropped := models.FilterThemes(detail.Themes); len(dropped) > 0 {
		h.logger.Warn("ignoring themes outside the vocabulary", map[string]interface{}{
			"childId": detail.ChildID,
			"themes":  dropped,
		})
	}

	results := make([]models.Result[json.RawMessage], len(kinds))
	var g errgroup.Group
	for i, kind := range kinds {
		if !models.IsKnownEndpointKind(kind) {
			results[i] = models.Err[json.RawMessage](models.ErrKindUnknownEndpoint, "unsupported endpoint kind "+strconv.Quote(kind))
			metrics.BackendEndpointCalls.WithLabelValues("unknown", metrics.StatusError).Inc()
			continue
		}
		g.Go(func() error {
			results[i] = h.call(ctx, kind, detail)
			return nil
		})
	}
	_ = g.Wait()

	merged := make(models.BackendResult, len(kinds))
	for i, kind := range kinds {
		res := results[i]
		if res.IsOk() {
			merged[kind] = res.Value
			continue
		}
		merged[models.ErrorKey(kind)] = models.ErrorPayload(kind, res.Err)
		h.logger.Warn("endpoint call failed", map[string]interface{}{
			"childId": detail.ChildID,
			"kind":    kind,
			"error":   res.Err.Error(),
		})
	}
	return merged
}

func (h *Handler) call(ctx context.Context, kind string, detail models.APICallDetail) models.Result[json.RawMessage] {
	callCtx, cancel := context.WithTimeout(ctx, h.config.CallTimeout)
	defer cancel()

	res := h.fetchKind(callCtx, kind, detail)
	status := metrics.StatusSuccess
	if !res.IsOk() {
		status = metrics.StatusError
	}
	metrics.BackendEndpointCalls.WithLabelValues(kind, status).Inc()
	return res
}

func (h *Handler) fetchKind(ctx context.Context, kind string, detail models.APICallDetail) models.Result[json.RawMessage] {
	body, err := h.client.GetJSON(ctx, BuildURL(h.config.BaseURL, kind, detail))
	if err != nil {
		var statusErr *httpclient.StatusError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return models.Err[json.RawMessage](models.ErrKindTimeout, err.Error())
		case errors.As(err, &statusErr):
			return models.Err[json.RawMessage](models.ErrKindHTTPStatus, statusErr.Error())
		default:
			return models.Err[json.RawMessage](models.ErrKindTransport, err.Error())
		}
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(body, &object); err != nil || object == nil {
		return models.Err[json.RawMessage](models.ErrKindDecode, "response is not a JSON object")
	}
	return models.Ok(json.RawMessage(body))
}

// BuildURL renders {base}/child/{child_id}/{kind} with the detail's filters.
// Themes outside the vocabulary are dropped and the rest are joined with
// literal commas.
func BuildURL(base, kind string, detail models.APICallDetail) string {
	endpoint := strings.TrimRight(base, "/") + "/child/" + url.PathEscape(detail.ChildID) + "/" + kind

	var params []string
	if themes, _ := models.FilterThemes(detail.Themes); len(themes) > 0 {
		escaped := make([]string, len(themes))
		for i, t := range themes {
			escaped[i] = url.QueryEscape(t)
		}
		params = append(params, "themes="+strings.Join(escaped, ","))
	}

	values := url.Values{}
	if detail.TimeUnit.Valid() {
		values.Set("time_unit", string(detail.TimeUnit))
	}
	if detail.NumPeriods != nil && *detail.NumPeriods > 0 {
		values.Set("num_periods", strconv.Itoa(*detail.NumPeriods))
	}
	if models.ValidDate(detail.StartDate) {
		values.Set("start_date", detail.StartDate)
	}
	if models.ValidDate(detail.EndDate) {
		values.Set("end_date", detail.EndDate)
	}
	if encoded := values.Encode(); encoded != "" {
		params = append(params, encoded)
	}

	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + strings.Join(params, "&")
}

func dedupe(kinds []string) []string {
	seen := make(map[string]bool, len(kinds))
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
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
	if errors.Is(err, ErrInvalidInput) {
		stdErr = apperrors.NewInvalidInputError(err.Error())
	} else {
		stdErr = apperrors.NewBackendCallFailedError("all", err)
	}
	apperrors.NewErrorHandler(h.logger).HandleJobError(context.Background(), client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
