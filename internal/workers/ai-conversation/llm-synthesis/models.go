// internal/workers/ai-conversation/llm-synthesis/models.go
package llmsynthesis

type Input struct {
	Prompt string `json:"prompt"`
}

type Output struct {
	Answer   string    `json:"answer"`
	Analysis *Analysis `json:"analysis,omitempty"`
	Fallback bool      `json:"synthesisFallback"`
}

// Analysis is the structured answer requested by the chat-analysis template.
type Analysis struct {
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}
