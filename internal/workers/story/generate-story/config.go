package generatestory

import "time"

type Config struct {
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     120 * time.Second,
		Temperature: 0.8,
		MaxTokens:   4096,
	}
}
