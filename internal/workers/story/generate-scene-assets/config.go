package generatesceneassets

import "time"

type Config struct {
	// MaxConcurrency caps in-flight asset tasks. Zero runs every task at once.
	MaxConcurrency int
	TaskTimeout    time.Duration
	Timeout        time.Duration
}

func LoadConfig() *Config {
	return &Config{
		MaxConcurrency: 0,
		TaskTimeout:    60 * time.Second,
		Timeout:        5 * time.Minute,
	}
}
