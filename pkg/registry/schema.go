// pkg/registry/schema.go
package registry

// Catalogue is the on-disk shape of a template file.
type Catalogue struct {
	Version     string         `yaml:"version"`
	LastUpdated string         `yaml:"lastUpdated"`
	Templates   []TemplateSpec `yaml:"templates"`
}

type TemplateSpec struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Slots       []string `yaml:"slots"`
	Body        string   `yaml:"body"`
}

// Names of the templates the workers render.
const (
	IntentClassification = "intent-classification"
	ChatAnalysis         = "chat-analysis"
	StoryGeneration      = "story-generation"
)

// RequiredTemplates must be present in every catalogue the service loads.
var RequiredTemplates = []string{IntentClassification, ChatAnalysis, StoryGeneration}
