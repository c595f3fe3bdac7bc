package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracing_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracing := newTracingWithExporter("finlit-test", exporter, 1)

	ctx, span := tracing.StartSpan(context.Background(), "chat.classify", "pipeline", "chat")
	_, child := tracing.StartSpan(ctx, "chat.fetch")
	EndSpan(child, errors.New("backend down"))
	EndSpan(span, nil)

	require.NoError(t, tracing.Shutdown(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "chat.fetch", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].Parent.TraceID())
}

func TestNoopTracing(t *testing.T) {
	tracing := NoopTracing()
	_, span := tracing.StartSpan(context.Background(), "noop")
	EndSpan(span, nil)
	assert.NoError(t, tracing.Shutdown(context.Background()))
}

func TestNewTracing_RequiresEndpoint(t *testing.T) {
	_, err := NewTracing("svc", "", 1)
	assert.Error(t, err)
}

func TestObservability_NilSafe(t *testing.T) {
	var o *Observability
	o.RecordStage(context.Background(), "chat", "classify", time.Millisecond)
	o.RecordJobProcessed(context.Background(), "classify-intent", "completed")
	assert.NoError(t, o.Shutdown(context.Background()))
	assert.NotNil(t, o.Tracing())
}
