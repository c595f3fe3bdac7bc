package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
app:
  name: finlit-workers
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: finlit
    user: finlit
  elasticsearch:
    addresses: ["http://localhost:9200"]
  redis:
    address: localhost:6379
apis:
  genai:
    api_key: ${TEST_GENAI_KEY}
  backend:
    base_url: http://backend.local/api
workers:
  classify-intent:
    enabled: true
  generate-scene-assets:
    enabled: false
    timeout: 240000
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_ExpandsAndDefaults(t *testing.T) {
	t.Setenv("TEST_GENAI_KEY", "sk-test")
	cfg, err := LoadFromFile(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.APIs.GenAI.APIKey)
	assert.Equal(t, "http://localhost:9200", cfg.Database.Elasticsearch.URL)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 5, cfg.Retrieval.ResultCap)
	assert.Zero(t, cfg.Assets.MaxConcurrency, "asset fan-out is unbounded unless configured")
	assert.Equal(t, "gpt-4o-mini", cfg.APIs.GenAI.ChatModel)

	classify := cfg.Workers["classify-intent"]
	assert.True(t, classify.Enabled)
	assert.Equal(t, 30000, classify.Timeout)
	assert.Equal(t, 3, classify.MaxRetries)

	assets := GetWorkerConfig(cfg, "generate-scene-assets")
	assert.Equal(t, 240000, assets.Timeout)
	assert.False(t, IsWorkerEnabled(cfg, "generate-scene-assets"))
	assert.True(t, IsWorkerEnabled(cfg, "notify-story-ready"))
}

func TestLoadFromFile_MissingGenAIKey(t *testing.T) {
	t.Setenv("GENAI_API_KEY", "")
	body := strings.Replace(validYAML, "    api_key: ${TEST_GENAI_KEY}\n", "", 1)
	_, err := LoadFromFile(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apis.genai.api_key")
}

func TestLoadFromFile_WithoutBroker(t *testing.T) {
	t.Setenv("TEST_GENAI_KEY", "sk-test")
	body := strings.Replace(validYAML, "camunda:\n  broker_address: localhost:26500\n", "", 1)
	require.NotEqual(t, validYAML, body)

	cfg, err := LoadFromFile(writeConfig(t, body))

	require.NoError(t, err)
	assert.Empty(t, cfg.Camunda.BrokerAddress)
	assert.Equal(t, 10, cfg.Camunda.MaxJobsActive)
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Camunda.BrokerAddress = "localhost:26500"
		cfg.Database.Postgres = PostgresConfig{Host: "db", Database: "finlit", User: "u"}
		cfg.Database.Elasticsearch.URL = "http://es:9200"
		cfg.Database.Redis.Address = "redis:6379"
		cfg.APIs.GenAI.APIKey = "sk"
		cfg.APIs.Backend.BaseURL = "http://backend"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no broker serves http only", mutate: func(c *Config) { c.Camunda.BrokerAddress = "" }},
		{name: "no redis", mutate: func(c *Config) { c.Database.Redis.Address = "" }, wantErr: "database.redis.address"},
		{name: "no backend", mutate: func(c *Config) { c.APIs.Backend.BaseURL = "" }, wantErr: "apis.backend.base_url"},
		{
			name:    "sns without topic",
			mutate:  func(c *Config) { c.Notifications.SNS.Enabled = true },
			wantErr: "notifications.sns.topic_arn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	dsn := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "finlit", SSLMode: "disable"}.GetDSN()
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=finlit sslmode=disable", dsn)
}

func TestLoadFromFile_ShippedConfig(t *testing.T) {
	t.Setenv("GENAI_API_KEY", "sk-test")
	cfg, err := LoadFromFile(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	for _, taskType := range []string{
		"classify-intent", "fetch-performance-data", "assemble-context", "llm-synthesis",
		"retrieve-context", "generate-story", "generate-scene-assets", "persist-book", "notify-story-ready",
	} {
		assert.Contains(t, cfg.Workers, taskType)
	}
	assert.Equal(t, "configs/templates.yaml", cfg.Templates.Path)
	assert.Empty(t, cfg.Assets.Bucket)
	assert.Equal(t, 300*time.Second, time.Duration(cfg.Retrieval.CacheTTL)*time.Second)
}
