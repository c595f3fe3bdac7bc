package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	IntentClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_classifications_total",
			Help: "Classified caregiver queries by intent and whether a fallback was used",
		},
		[]string{"intent", "fallback"},
	)

	BackendEndpointCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_endpoint_calls_total",
			Help: "Learning-data backend calls by endpoint kind and outcome",
		},
		[]string{"kind", "status"},
	)

	RetrievalCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retrieval_cache_lookups_total",
			Help: "Reference retrieval cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	AssetTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asset_tasks_total",
			Help: "Scene asset generation tasks by modality and outcome",
		},
		[]string{"modality", "status"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of orchestrator stages",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"pipeline", "stage"},
	)

	HTTPRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP API request latency by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

func BoolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
