// internal/workers/story/retrieve-context/config.go
package retrievecontext

import "time"

type Config struct {
	Index     string
	TopK      int
	MinScore  float64
	ResultCap int
	CacheTTL  time.Duration
	Timeout   time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Index:     "finlit-documents",
		TopK:      5,
		ResultCap: 5,
		CacheTTL:  5 * time.Minute,
		Timeout:   10 * time.Second,
	}
}
