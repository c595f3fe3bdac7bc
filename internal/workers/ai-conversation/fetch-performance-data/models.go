// internal/workers/ai-conversation/fetch-performance-data/models.go
package fetchperformancedata

import "finlit-workers/internal/models"

type Input struct {
	Intent models.IntentEnvelope `json:"intent"`
}

type Output struct {
	BackendData models.BackendResult `json:"backendData"`
	Skipped     bool                 `json:"dataFetchSkipped"`
}
