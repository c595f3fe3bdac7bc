package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/common/observability"
	"finlit-workers/internal/models"
	assemblecontext "finlit-workers/internal/workers/ai-conversation/assemble-context"
	llmsynthesis "finlit-workers/internal/workers/ai-conversation/llm-synthesis"
)

const chatPipeline = "chat"

// Chat states.
const (
	StateReceivedQuery     State = "ReceivedQuery"
	StateClassified        State = "Classified"
	StateDataFetched       State = "DataFetched"
	StateSkipped           State = "Skipped"
	StateContextAssembled  State = "ContextAssembled"
	StateResponseGenerated State = "ResponseGenerated"
)

var ErrInvalidRequest = errors.New("invalid request")

type IntentClassifier interface {
	Classify(ctx context.Context, query, childID string) models.Intent
}

type DataFetcher interface {
	Fetch(ctx context.Context, detail models.APICallDetail) models.BackendResult
}

type ContextRetriever interface {
	RetrieveContext(ctx context.Context, query string, age *int) []models.PrioritizedDocument
}

type ChatAssembler interface {
	AssembleChat(query, childID string, intent models.Intent, backend models.BackendResult, docs []models.PrioritizedDocument) (*assemblecontext.Output, error)
}

// Responder turns a prompt into an answer. The bool reports whether the
// safe fallback message was substituted.
type Responder interface {
	Answer(ctx context.Context, prompt string) (*llmsynthesis.Output, bool)
}

type ChatRequest struct {
	Query    string
	ChildID  string
	ChildAge *int
}

type ChatResponse struct {
	Answer   string                 `json:"answer"`
	Intent   models.IntentEnvelope  `json:"intent"`
	State    State                  `json:"state"`
	Trace    Trace                  `json:"trace"`
	Analysis *llmsynthesis.Analysis `json:"analysis,omitempty"`
}

type ChatOrchestrator struct {
	classifier IntentClassifier
	fetcher    DataFetcher
	retriever  ContextRetriever
	assembler  ChatAssembler
	responder  Responder
	stages     stageRunner
	logger     logger.Logger
}

// NewChatOrchestrator wires the chat pipeline. obs may be nil.
func NewChatOrchestrator(
	classifier IntentClassifier,
	fetcher DataFetcher,
	retriever ContextRetriever,
	assembler ChatAssembler,
	responder Responder,
	obs *observability.Observability,
	log logger.Logger,
) *ChatOrchestrator {
	return &ChatOrchestrator{
		classifier: classifier,
		fetcher:    fetcher,
		retriever:  retriever,
		assembler:  assembler,
		responder:  responder,
		stages:     stageRunner{pipeline: chatPipeline, obs: obs},
		logger:     log.WithFields(map[string]interface{}{"pipeline": chatPipeline}),
	}
}

// Handle runs one caregiver query to completion. Completion failures end in
// StateFailed with the safe message as the answer and no error; an error is
// returned only for invalid requests or a context that cannot be assembled.
func (o *ChatOrchestrator) Handle(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" || req.ChildID == "" {
		return nil, fmt.Errorf("%w: query and child id are required", ErrInvalidRequest)
	}

	var trace Trace
	trace.enter(StateReceivedQuery)

	var intent models.Intent
	_ = o.stages.run(ctx, "classify", func(ctx context.Context) error {
		intent = o.classifier.Classify(ctx, req.Query, req.ChildID)
		return nil
	})
	trace.enter(StateClassified)

	var backend models.BackendResult
	switch v := intent.(type) {
	case models.PerformanceIntent:
		_ = o.stages.run(ctx, "fetch", func(ctx context.Context) error {
			backend = o.fetcher.Fetch(ctx, v.Detail)
			return nil
		})
		trace.enter(StateDataFetched)
	case models.GeneralIntent:
		backend = models.NoDataResult()
		trace.enter(StateSkipped)
	default:
		return nil, fmt.Errorf("unsupported intent %T", intent)
	}

	var docs []models.PrioritizedDocument
	_ = o.stages.run(ctx, "retrieve", func(ctx context.Context) error {
		docs = o.retriever.RetrieveContext(ctx, req.Query, req.ChildAge)
		return nil
	})

	var assembled *assemblecontext.Output
	err := o.stages.run(ctx, "assemble", func(context.Context) error {
		var err error
		assembled, err = o.assembler.AssembleChat(req.Query, req.ChildID, intent, backend, docs)
		return err
	})
	if err != nil {
		o.logger.Error("context assembly failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("assemble context: %w", err)
	}
	trace.enter(StateContextAssembled)

	var (
		answer   *llmsynthesis.Output
		fallback bool
	)
	_ = o.stages.run(ctx, "respond", func(ctx context.Context) error {
		answer, fallback = o.responder.Answer(ctx, assembled.Prompt)
		if fallback {
			return errors.New("completion fell back to the safe message")
		}
		return nil
	})
	trace.enter(StateResponseGenerated)
	if fallback {
		trace.enter(StateFailed)
	} else {
		trace.enter(StateDone)
	}

	o.logger.Info("chat query answered", map[string]interface{}{
		"childId":   req.ChildID,
		"intent":    string(intent.Tag()),
		"documents": len(docs),
		"template":  assembled.Template + "@" + assembled.TemplateVersion,
		"state":     string(trace.Last()),
	})

	return &ChatResponse{
		Answer:   answer.Answer,
		Intent:   models.EncodeIntent(intent),
		State:    trace.Last(),
		Trace:    trace,
		Analysis: answer.Analysis,
	}, nil
}
