// internal/workers/ai-conversation/llm-synthesis/config.go
package llmsynthesis

import "time"

type Config struct {
	Timeout       time.Duration
	MaxTokens     int
	Temperature   float32
	ParseAnalysis bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       60 * time.Second,
		Temperature:   0.7,
		ParseAnalysis: true,
	}
}
