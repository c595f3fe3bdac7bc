// internal/workers/ai-conversation/assemble-context/config.go
package assemblecontext

type Config struct {
	// MaxReferenceChars bounds the reference section. Zero disables the bound.
	MaxReferenceChars int
}

func LoadConfig() *Config {
	return &Config{
		MaxReferenceChars: 6000,
	}
}
