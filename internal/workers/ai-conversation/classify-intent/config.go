// internal/workers/ai-conversation/classify-intent/config.go
package classifyintent

import "time"

type Config struct {
	Timeout     time.Duration
	Temperature float32
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     30 * time.Second,
		Temperature: 0.1,
	}
}
