// Package config loads and validates service configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Engine, Search, Refresh, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Engine   EngineConfig   `yaml:"engine"`
	Search   SearchConfig   `yaml:"search"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

// PostgresConfig holds connection parameters for the corpus database. An
// empty Host disables the Postgres store.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	CorpusTable     string        `yaml:"corpusTable"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds broker and topic settings. No brokers means the refresh
// consumer and fit-event producer are not started.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CorpusRefresh string `yaml:"corpusRefresh"`
	IndexFitted   string `yaml:"indexFitted"`
}

// RedisConfig holds Redis connection and caching parameters. An empty Addr
// disables the query cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// EngineConfig controls how the TF-IDF engine is fit.
type EngineConfig struct {
	FitConcurrency        int    `yaml:"fitConcurrency"`
	DocumentFrequencyMode string `yaml:"documentFrequencyMode"`
}

// SearchConfig controls query result limits.
type SearchConfig struct {
	DefaultLimit int     `yaml:"defaultLimit"`
	MaxResults   int     `yaml:"maxResults"`
	MinScore     float64 `yaml:"minScore"`
}

// CorpusConfig names the JSON corpus file used when Postgres is disabled.
type CorpusConfig struct {
	File string `yaml:"file"`
}

// RefreshConfig controls periodic refits and the retry policy used when
// loading a corpus snapshot.
type RefreshConfig struct {
	Interval         time.Duration `yaml:"interval"`
	MaxAttempts      int           `yaml:"maxAttempts"`
	InitialDelay     time.Duration `yaml:"initialDelay"`
	MaxDelay         time.Duration `yaml:"maxDelay"`
	AllowEmptyCorpus bool          `yaml:"allowEmptyCorpus"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.defaultLimit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.maxResults (%d) must be >= search.defaultLimit (%d)",
			c.Search.MaxResults, c.Search.DefaultLimit)
	}
	switch c.Engine.DocumentFrequencyMode {
	case "token", "substring":
	default:
		return fmt.Errorf("engine.documentFrequencyMode must be token or substring, got %q",
			c.Engine.DocumentFrequencyMode)
	}
	if c.Engine.FitConcurrency < 1 {
		return fmt.Errorf("engine.fitConcurrency must be positive, got %d", c.Engine.FitConcurrency)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "mos",
			User:            "summarysearch",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			CorpusTable:     "images",
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "summarysearch",
			Topics: KafkaTopics{
				CorpusRefresh: "corpus-refresh",
				IndexFitted:   "index-fitted",
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Engine: EngineConfig{
			FitConcurrency:        4,
			DocumentFrequencyMode: "token",
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxResults:   100,
		},
		Refresh: RefreshConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SS_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SS_ENGINE_DF_MODE"); v != "" {
		cfg.Engine.DocumentFrequencyMode = v
	}
	if v := os.Getenv("SS_CORPUS_FILE"); v != "" {
		cfg.Corpus.File = v
	}
	if v := os.Getenv("SS_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Refresh.Interval = d
		}
	}
	if v := os.Getenv("SS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
