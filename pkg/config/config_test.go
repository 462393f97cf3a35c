package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxResults)
	assert.Equal(t, "token", cfg.Engine.DocumentFrequencyMode)
	assert.Equal(t, "images", cfg.Postgres.CorpusTable)
	assert.Empty(t, cfg.Postgres.Host)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 8088
engine:
  fitConcurrency: 2
  documentFrequencyMode: substring
search:
  defaultLimit: 5
  maxResults: 50
refresh:
  interval: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("SS_REDIS_ADDR", "localhost:6380")
	t.Setenv("SS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Engine.FitConcurrency)
	assert.Equal(t, "substring", cfg.Engine.DocumentFrequencyMode)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.Equal(t, 2*time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	// untouched defaults survive a partial file
	assert.Equal(t, 60*time.Second, cfg.Redis.CacheTTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero default limit", func(c *Config) { c.Search.DefaultLimit = 0 }},
		{"max below default", func(c *Config) { c.Search.MaxResults = 1 }},
		{"unknown df mode", func(c *Config) { c.Engine.DocumentFrequencyMode = "fuzzy" }},
		{"zero concurrency", func(c *Config) { c.Engine.FitConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
