package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Pipewise agent core.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	LLM       LLMConfig
	Executor  ExecutorConfig
	Retention RetentionConfig
	Telemetry TelemetryConfig

	// SettingsFile optionally seeds per-org agent settings from YAML.
	SettingsFile string
}

type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty selects the in-memory store.
	URL            string
	MaxConnections int
}

type RedisConfig struct {
	// Addr is the Redis host:port. Empty selects in-memory rate limiting
	// and idempotency tracking.
	Addr     string
	Password string
	DB       int
}

type QueueConfig struct {
	// AMQPURL is the RabbitMQ connection string. Empty selects the in-memory queue.
	AMQPURL string
	// StandardQueue receives jobs with priority < 4.
	StandardQueue string
	// LowLatencyQueue receives jobs with priority >= 4.
	LowLatencyQueue string
}

type LLMConfig struct {
	// CallTimeout is the hard per-call timeout passed to every provider call.
	CallTimeout time.Duration
	// MaxRetries bounds retries of transient provider errors per decision.
	MaxRetries int
	// Strategy orders providers: "fallback", "latency", "round_robin".
	Strategy string

	OpenAIKey      string
	OpenAIEndpoint string
	AzureKey       string
	AzureEndpoint  string
	AnthropicKey   string
	OllamaEndpoint string
}

type ExecutorConfig struct {
	// MaxAttempts bounds retryable action executions, first attempt included.
	MaxAttempts int
	// InitialBackoff seeds the exponential retry schedule.
	InitialBackoff time.Duration
	// SweepInterval is how often expired pending decisions are collected.
	SweepInterval time.Duration
}

type RetentionConfig struct {
	// Interval is how often the retention janitor sweeps.
	Interval time.Duration
	// ArchiveDir enables archiving of purged audit data when set.
	ArchiveDir string
	// Compress gzips archive files.
	Compress bool
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// AdminAPIKeys returns the configured admin API keys (comma-separated env).
func AdminAPIKeys() string { return os.Getenv("PIPEWISE_API_KEYS") }

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:         envInt("PIPEWISE_PORT", 8080),
		Version:      envStr("PIPEWISE_VERSION", "0.4.0"),
		SettingsFile: envStr("PIPEWISE_SETTINGS_FILE", ""),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Redis: RedisConfig{
			Addr:     envStr("REDIS_ADDR", ""),
			Password: envStr("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			AMQPURL:         envStr("AMQP_URL", ""),
			StandardQueue:   envStr("PIPEWISE_QUEUE_STANDARD", "agent.tasks"),
			LowLatencyQueue: envStr("PIPEWISE_QUEUE_URGENT", "agent.tasks.urgent"),
		},
		LLM: LLMConfig{
			CallTimeout:    envDur("PIPEWISE_LLM_TIMEOUT", 45*time.Second),
			MaxRetries:     envInt("PIPEWISE_LLM_MAX_RETRIES", 3),
			Strategy:       envStr("PIPEWISE_LLM_STRATEGY", "fallback"),
			OpenAIKey:      envStr("OPENAI_API_KEY", ""),
			OpenAIEndpoint: envStr("OPENAI_ENDPOINT", ""),
			AzureKey:       envStr("AZURE_OPENAI_API_KEY", ""),
			AzureEndpoint:  envStr("AZURE_OPENAI_ENDPOINT", ""),
			AnthropicKey:   envStr("ANTHROPIC_API_KEY", ""),
			OllamaEndpoint: envStr("OLLAMA_ENDPOINT", ""),
		},
		Executor: ExecutorConfig{
			MaxAttempts:    envInt("PIPEWISE_ACTION_MAX_ATTEMPTS", 4),
			InitialBackoff: envDur("PIPEWISE_ACTION_BACKOFF", time.Second),
			SweepInterval:  envDur("PIPEWISE_SWEEP_INTERVAL", time.Minute),
		},
		Retention: RetentionConfig{
			Interval:   envDur("PIPEWISE_RETENTION_INTERVAL", 6*time.Hour),
			ArchiveDir: envStr("PIPEWISE_ARCHIVE_DIR", ""),
			Compress:   envBool("PIPEWISE_ARCHIVE_COMPRESS", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "pipewise-agent-core"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
