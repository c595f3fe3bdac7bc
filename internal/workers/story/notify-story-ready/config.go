package notifystoryready

import "time"

type Config struct {
	Timeout time.Duration

	SNSEnabled bool
	TopicARN   string

	SESEnabled bool
	Sender     string

	// ReaderBaseURL prefixes the book id in the email link.
	ReaderBaseURL string
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
