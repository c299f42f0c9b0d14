// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds every knob the service reads at startup.
type Config struct {
	Environment string
	HTTPAddr    string

	DatabaseURL string
	RedisURL    string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAITimeout time.Duration

	AdminToken          string
	BootstrapDeviceKey  string
	BootstrapDeviceUser string

	EnrichmentQueueKey       string
	EnrichmentSyncCompletion bool

	DailyAudioSecondsLimit float64
	DailyLLMTokensLimit    int64

	CaptureRateLimit  int
	CaptureRateWindow time.Duration

	OTLPEndpoint string
}

// Load reads configuration from the environment. A .env file is honored when
// present so local runs match deployed ones.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITimeout: getDuration("OPENAI_TIMEOUT", 60*time.Second),

		AdminToken:          os.Getenv("ADMIN_TOKEN"),
		BootstrapDeviceKey:  os.Getenv("DEVICE_API_KEY"),
		BootstrapDeviceUser: getEnv("DEVICE_API_USER", "device"),

		EnrichmentQueueKey:       getEnv("ENRICHMENT_QUEUE_KEY", "halfnote:queue:enrichment"),
		EnrichmentSyncCompletion: getBool("ENRICHMENT_SYNC_COMPLETION", false),

		DailyAudioSecondsLimit: getFloat("DAILY_AUDIO_SECONDS_LIMIT", 28800),
		DailyLLMTokensLimit:    getInt64("DAILY_LLM_TOKENS_LIMIT", 2_000_000),

		CaptureRateLimit:  int(getInt64("CAPTURE_RATE_LIMIT", 30)),
		CaptureRateWindow: getDuration("CAPTURE_RATE_WINDOW", time.Minute),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

// IsProduction reports whether the service runs with production hardening.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// Module provides Config to the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
)
