// internal/models/document.go
package models

type ContentType string

const (
	ContentFinancial ContentType = "financial"
	ContentCultural  ContentType = "cultural"
	ContentStory     ContentType = "story"
	ContentUniversal ContentType = "universal"
)

type DocumentMetadata struct {
	MinAge      int         `json:"min_age"`
	MaxAge      int         `json:"max_age"`
	ContentType ContentType `json:"content_type"`
	Title       string      `json:"title,omitempty"`
	Source      string      `json:"source,omitempty"`
}

// RetrievedDocument is one similarity-search hit. Treat as read-only.
type RetrievedDocument struct {
	ID       string           `json:"id"`
	Content  string           `json:"content"`
	Score    float64          `json:"score"`
	Metadata DocumentMetadata `json:"metadata"`
}

// ContainsAge reports whether age falls in [MinAge, MaxAge].
func (d RetrievedDocument) ContainsAge(age int) bool {
	return d.Metadata.MinAge <= age && age <= d.Metadata.MaxAge
}

// PrioritizedDocument is a selected document with the tier that admitted it.
type PrioritizedDocument struct {
	Document RetrievedDocument `json:"document"`
	Tier     int               `json:"tier"`
}

// RetrievalPlaceholder replaces an empty reference section.
const RetrievalPlaceholder = "Tidak ada konteks yang relevan ditemukan."
