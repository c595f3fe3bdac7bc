// Package orchestrator composes the workers into the synchronous chat and
// story request cycles served by the HTTP API. Each request gets its own
// trace of states; nothing is shared between requests.
package orchestrator

import (
	"context"
	"time"

	"finlit-workers/internal/common/metrics"
	"finlit-workers/internal/common/observability"
)

// State is a step of a pipeline's state machine.
type State string

const (
	StateFailed State = "Failed"
	StateDone   State = "Done"
)

// Trace is the ordered list of states a request passed through.
type Trace []State

func (t *Trace) enter(s State) {
	*t = append(*t, s)
}

// Last returns the current state.
func (t Trace) Last() State {
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

type stageRunner struct {
	pipeline string
	obs      *observability.Observability
}

// run executes fn inside a span and records its duration under stage.
func (r stageRunner) run(ctx context.Context, stage string, fn func(ctx context.Context) error) error {
	started := time.Now()
	ctx, span := r.obs.Tracing().StartSpan(ctx, r.pipeline+"."+stage,
		"pipeline", r.pipeline,
		"stage", stage,
	)

	err := fn(ctx)

	observability.EndSpan(span, err)
	elapsed := time.Since(started)
	metrics.PipelineStageDuration.WithLabelValues(r.pipeline, stage).Observe(elapsed.Seconds())
	r.obs.RecordStage(ctx, r.pipeline, stage, elapsed)
	return err
}
