// internal/workers/ai-conversation/classify-intent/models.go
package classifyintent

import "finlit-workers/internal/models"

type Input struct {
	Query   string `json:"query"`
	ChildID string `json:"childId"`
}

type Output struct {
	Intent   models.IntentEnvelope `json:"intent"`
	Fallback bool                  `json:"intentFallback"`
}
