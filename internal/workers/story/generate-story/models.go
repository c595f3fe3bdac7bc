package generatestory

import "finlit-workers/internal/models"

type Input struct {
	Prompt   string          `json:"prompt"`
	UserID   string          `json:"userId"`
	ChildID  string          `json:"childId"`
	Age      int             `json:"age"`
	Language models.Language `json:"language"`
}

type Output struct {
	Story             *models.Story `json:"story"`
	StructureMismatch bool          `json:"structureMismatch"`
}

// StoryMeta is what the caller knows about a story before it is generated.
type StoryMeta struct {
	UserID   string
	ChildID  string
	Age      int
	Language models.Language
}
