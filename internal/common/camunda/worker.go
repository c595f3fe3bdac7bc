package camunda

import (
	"context"
	"time"

	"finlit-workers/internal/common/config"
	"finlit-workers/internal/common/logger"
	"finlit-workers/internal/common/metrics"
	"finlit-workers/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Job outcomes as seen by the instrumented client.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeThrown    = "error_thrown"
	OutcomeUnknown   = "unreported"
)

// outcomeClient records which terminal command a handler issued.
type outcomeClient struct {
	worker.JobClient
	outcome string
}

func (c *outcomeClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	c.outcome = OutcomeCompleted
	return c.JobClient.NewCompleteJobCommand()
}

func (c *outcomeClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	c.outcome = OutcomeFailed
	return c.JobClient.NewFailJobCommand()
}

func (c *outcomeClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	c.outcome = OutcomeThrown
	return c.JobClient.NewThrowErrorCommand()
}

// Instrument wraps handler with job metrics and a recovered panic guard.
func Instrument(taskType string, handler worker.JobHandler, log logger.Logger, obs *observability.Observability) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
		tracked := &outcomeClient{JobClient: client, outcome: OutcomeUnknown}

		defer func() {
			metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()
			if r := recover(); r != nil {
				tracked.outcome = OutcomeFailed
				log.Error("job handler panicked", map[string]interface{}{
					"taskType": taskType,
					"jobKey":   job.Key,
					"panic":    r,
				})
			}

			elapsed := time.Since(start)
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
			switch tracked.outcome {
			case OutcomeCompleted:
				metrics.WorkerJobsCompleted.WithLabelValues(taskType).Inc()
			default:
				metrics.WorkerJobsFailed.WithLabelValues(taskType, tracked.outcome).Inc()
			}
			obs.RecordJobProcessed(context.Background(), taskType, tracked.outcome)
			obs.RecordJobDuration(context.Background(), taskType, elapsed, tracked.outcome)
		}()

		handler(tracked, job)
	}
}

// StartWorker opens a job worker for taskType using the per-worker settings.
func StartWorker(
	client zbc.Client,
	taskType string,
	wcfg config.WorkerConfig,
	handler worker.JobHandler,
	log logger.Logger,
	obs *observability.Observability,
) worker.JobWorker {
	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(Instrument(taskType, handler, log, obs)).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Name(taskType).
		Open()

	log.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeoutMs":     wcfg.Timeout,
	})
	return jobWorker
}
