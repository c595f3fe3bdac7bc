// internal/workers/ai-conversation/assemble-context/models.go
package assemblecontext

import "finlit-workers/internal/models"

// Modes of assembly.
const (
	ModeChat  = "chat"
	ModeStory = "story"
)

type Input struct {
	Mode        string                       `json:"mode"`
	Query       string                       `json:"query"`
	ChildID     string                       `json:"childId,omitempty"`
	UserID      string                       `json:"userId,omitempty"`
	Age         int                          `json:"age,omitempty"`
	Language    models.Language              `json:"language,omitempty"`
	Intent      *models.IntentEnvelope       `json:"intent,omitempty"`
	BackendData models.BackendResult         `json:"backendData,omitempty"`
	Documents   []models.PrioritizedDocument `json:"documents,omitempty"`
}

type Output struct {
	Prompt          string `json:"prompt"`
	Template        string `json:"template"`
	TemplateVersion string `json:"templateVersion"`
	Reference       string `json:"referenceSection"`
	// Dropped counts reference documents left out by the size bound.
	Dropped int `json:"droppedReferences,omitempty"`
}
