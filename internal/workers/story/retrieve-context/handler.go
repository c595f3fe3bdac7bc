package retrievecontext

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"finlit-workers/internal/common/database"
	apperrors "finlit-workers/internal/common/errors"
	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/common/metrics"
	"finlit-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "retrieve-context"

	cacheKeyPrefix = "ai:retrieval:"
)

var (
	ErrInvalidInput    = errors.New("INVALID_INPUT")
	ErrRetrievalFailed = errors.New("RETRIEVAL_FAILED")
)

// Searcher runs a search request against an index.
type Searcher interface {
	Search(ctx context.Context, index string, query map[string]interface{}) ([]database.SearchHit, error)
}

// Cache stores serialized retrieval results.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type Handler struct {
	config   *Config
	searcher Searcher
	cache    Cache
	logger   logger.Logger
}

// NewHandler builds the retriever. cache may be nil.
func NewHandler(config *Config, searcher Searcher, cache Cache, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		searcher: searcher,
		cache:    cache,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
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

	docs, err := h.Retrieve(ctx, input.Query)
	degraded := err != nil
	if err != nil {
		h.logger.Warn("retrieval failed, continuing without reference material", map[string]interface{}{
			"error": err.Error(),
		})
		docs = nil
	}

	return &Output{
		Documents:  Prioritize(docs, input.Age, h.config.ResultCap),
		Candidates: len(docs),
		Degraded:   degraded,
	}, nil
}

// RetrieveContext returns the prioritized reference documents for query.
// Retrieval failures yield an empty selection.
func (h *Handler) RetrieveContext(ctx context.Context, query string, age *int) []models.PrioritizedDocument {
	out, err := h.execute(ctx, &Input{Query: query, Age: age})
	if err != nil {
		return []models.PrioritizedDocument{}
	}
	return out.Documents
}

// Retrieve returns up to TopK documents scoring at least MinScore, in
// similarity order. Results are cached by query and search settings. The
// cache lookup and search together are bounded by Config.Timeout.
func (h *Handler) Retrieve(ctx context.Context, query string) ([]models.RetrievedDocument, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	key := CacheKey(h.config, query)
	if docs, ok := h.lookup(ctx, key); ok {
		return docs, nil
	}

	hits, err := h.searcher.Search(ctx, h.config.Index, h.buildQuery(query))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	docs := make([]models.RetrievedDocument, 0, len(hits))
	for _, hit := range hits {
		doc, err := toDocument(hit)
		if err != nil {
			h.logger.Warn("skipping malformed document", map[string]interface{}{
				"documentId": hit.ID,
				"error":      err.Error(),
			})
			continue
		}
		docs = append(docs, doc)
	}

	h.store(ctx, key, docs)
	h.logger.Info("reference documents retrieved", map[string]interface{}{
		"hits":      len(hits),
		"documents": len(docs),
	})
	return docs, nil
}

func (h *Handler) buildQuery(query string) map[string]interface{} {
	q := map[string]interface{}{
		"size": h.config.TopK,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"content", "title^2"},
			},
		},
		"_source": []string{"title", "content", "min_age", "max_age", "content_type", "source"},
	}
	if h.config.MinScore > 0 {
		q["min_score"] = h.config.MinScore
	}
	return q
}

func toDocument(hit database.SearchHit) (models.RetrievedDocument, error) {
	var src documentSource
	if err := json.Unmarshal(hit.Source, &src); err != nil {
		return models.RetrievedDocument{}, err
	}
	if strings.TrimSpace(src.Content) == "" {
		return models.RetrievedDocument{}, errors.New("empty content")
	}
	if src.ContentType == "" {
		src.ContentType = models.ContentUniversal
	}
	return models.RetrievedDocument{
		ID:      hit.ID,
		Content: src.Content,
		Score:   hit.Score,
		Metadata: models.DocumentMetadata{
			MinAge:      src.MinAge,
			MaxAge:      src.MaxAge,
			ContentType: src.ContentType,
			Title:       src.Title,
			Source:      src.Source,
		},
	}, nil
}

// CacheKey is the redis key of a query's cached retrieval. The index and
// search limits are part of the key so a settings change never serves hits
// gathered under the old ones.
func CacheKey(cfg *Config, query string) string {
	input := fmt.Sprintf("%s|%d|%g|%s", cfg.Index, cfg.TopK, cfg.MinScore, strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(input))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (h *Handler) lookup(ctx context.Context, key string) ([]models.RetrievedDocument, bool) {
	if h.cache == nil {
		return nil, false
	}
	raw, err := h.cache.Get(ctx, key)
	switch {
	case errors.Is(err, database.ErrCacheMiss):
		metrics.RetrievalCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	case err != nil:
		metrics.RetrievalCacheLookups.WithLabelValues("error").Inc()
		h.logger.Warn("retrieval cache read failed", map[string]interface{}{"error": err.Error()})
		return nil, false
	}

	var docs []models.RetrievedDocument
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		metrics.RetrievalCacheLookups.WithLabelValues("error").Inc()
		h.logger.Warn("retrieval cache entry unreadable", map[string]interface{}{"error": err.Error()})
		return nil, false
	}
	metrics.RetrievalCacheLookups.WithLabelValues("hit").Inc()
	return docs, true
}

func (h *Handler) store(ctx context.Context, key string, docs []models.RetrievedDocument) {
	if h.cache == nil || h.config.CacheTTL <= 0 {
		return
	}
	payload, err := json.Marshal(docs)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, key, payload, h.config.CacheTTL); err != nil {
		h.logger.Warn("retrieval cache write failed", map[string]interface{}{"error": err.Error()})
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
	if errors.Is(err, ErrInvalidInput) {
		stdErr = apperrors.NewInvalidInputError(err.Error())
	} else {
		stdErr = apperrors.NewRetrievalFailedError(h.config.Index, err)
	}
	apperrors.NewErrorHandler(h.logger).HandleJobError(context.Background(), client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
