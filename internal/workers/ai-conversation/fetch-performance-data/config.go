// internal/workers/ai-conversation/fetch-performance-data/config.go
package fetchperformancedata

import "time"

type Config struct {
	BaseURL       string
	Token         string
	CallTimeout   time.Duration // per endpoint kind, retries included
	Timeout       time.Duration // whole job
	MaxRetries    int
	RetryInterval time.Duration
}

func LoadConfig() *Config {
	return &Config{
		CallTimeout:   5 * time.Second,
		Timeout:       30 * time.Second,
		MaxRetries:    2,
		RetryInterval: 200 * time.Millisecond,
	}
}
