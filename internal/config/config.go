package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the trialscope gateway and CLI.
type Config struct {
	Server    ServerConfig
	Research  ResearchConfig
	Poll      PollConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type ResearchConfig struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
}

type PollConfig struct {
	Interval               time.Duration
	DegradedAfter          int
	MaxConsecutiveFailures int
}

// RedisConfig is optional; an empty URL disables the snapshot cache and
// rate limiting.
type RedisConfig struct {
	URL         string
	SnapshotTTL time.Duration
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type TelemetryConfig struct {
	Enabled      bool
	Endpoint     string
	Insecure     bool
	SamplerRatio float64
	ServiceName  string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("TRIALSCOPE_PORT", 8080),
			Env:  envString("TRIALSCOPE_ENV", "development"),
		},
		Research: ResearchConfig{
			BaseURL:      strings.TrimSpace(os.Getenv("RESEARCH_API_BASE_URL")),
			APIKey:       os.Getenv("RESEARCH_API_KEY"),
			APIKeyHeader: envString("RESEARCH_API_KEY_HEADER", "X-API-Key"),
			Timeout:      envDuration("RESEARCH_API_TIMEOUT", 30*time.Second),
		},
		Poll: PollConfig{
			Interval:               envDuration("POLL_INTERVAL", 2*time.Second),
			DegradedAfter:          envInt("POLL_DEGRADED_AFTER", 3),
			MaxConsecutiveFailures: envInt("POLL_MAX_CONSECUTIVE_FAILURES", 0),
		},
		Redis: RedisConfig{
			URL:         os.Getenv("REDIS_URL"),
			SnapshotTTL: envDuration("SNAPSHOT_CACHE_TTL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			Endpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:     envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SamplerRatio: envFloat("OTEL_SAMPLER_RATIO", 0.1),
			ServiceName:  envString("OTEL_SERVICE_NAME", "trialscope"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("TRIALSCOPE_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Research.BaseURL == "" {
		return fmt.Errorf("RESEARCH_API_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Research.BaseURL, "http://") && !strings.HasPrefix(c.Research.BaseURL, "https://") {
		return fmt.Errorf("RESEARCH_API_BASE_URL must start with http:// or https://, got %q", c.Research.BaseURL)
	}
	if c.Research.APIKey == "" {
		return fmt.Errorf("RESEARCH_API_KEY is required")
	}
	if c.Research.Timeout <= 0 {
		return fmt.Errorf("RESEARCH_API_TIMEOUT must be positive, got %s", c.Research.Timeout)
	}

	if c.Poll.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.DegradedAfter < 0 {
		return fmt.Errorf("POLL_DEGRADED_AFTER must not be negative, got %d", c.Poll.DegradedAfter)
	}
	if c.Poll.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("POLL_MAX_CONSECUTIVE_FAILURES must not be negative, got %d", c.Poll.MaxConsecutiveFailures)
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Telemetry.SamplerRatio < 0 || c.Telemetry.SamplerRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLER_RATIO must be between 0 and 1, got %v", c.Telemetry.SamplerRatio)
	}

	return nil
}

// CacheEnabled reports whether a Redis URL was configured.
func (c *Config) CacheEnabled() bool {
	return c.Redis.URL != ""
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
