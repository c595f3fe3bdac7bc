// internal/workers/story/retrieve-context/models.go
package retrievecontext

import "finlit-workers/internal/models"

type Input struct {
	Query string `json:"query"`
	Age   *int   `json:"age,omitempty"`
}

type Output struct {
	Documents  []models.PrioritizedDocument `json:"documents"`
	Candidates int                          `json:"candidateCount"`
	Degraded   bool                         `json:"retrievalDegraded"`
}

// documentSource is the _source of an indexed reference document.
type documentSource struct {
	Title       string             `json:"title"`
	Content     string             `json:"content"`
	MinAge      int                `json:"min_age"`
	MaxAge      int                `json:"max_age"`
	ContentType models.ContentType `json:"content_type"`
	Source      string             `json:"source"`
}
