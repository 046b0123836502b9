// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string
	Gemini         GeminiConfig
	Storage        StorageConfig
	BackendAPIURL  string // primary backend used as resource-cache fallback; empty disables it
	AuthJWTSecret  string
	ScenariosFile  string // empty = embedded catalog
	RateLimit      RateLimitConfig
	Telemetry      TelemetryConfig
	GRPCHealthAddr string // empty disables the gRPC health server
}

// GeminiConfig configures the generative-language client.
type GeminiConfig struct {
	APIKey  string
	Model   string // overrides every persona profile model when set
	BaseURL string
}

// StorageConfig selects and configures the key/value backend.
type StorageConfig struct {
	Driver   string
	DBPath   string
	RedisURL string
	Prefix   string
}

// RateLimitConfig controls per-user throttling of generation routes.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// TelemetryConfig controls NDJSON telemetry output.
type TelemetryConfig struct {
	Enabled    bool
	Path       string
	QueueSize  int
	MaxSizeMB  int
	MaxBackups int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TELEMETRY_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		Gemini: GeminiConfig{
			APIKey:  geminiAPIKey(),
			Model:   getEnv("GEMINI_MODEL", ""),
			BaseURL: getEnv("GEMINI_BASE_URL", ""),
		},
		Storage: StorageConfig{
			Driver:   strings.ToLower(getEnv("STORAGE_DRIVER", StorageSQLite)),
			DBPath:   getEnv("DB_PATH", "./data/trainer.db"),
			RedisURL: getEnv("REDIS_URL", ""),
			Prefix:   getEnv("STORAGE_PREFIX", "pm-trainer"),
		},
		BackendAPIURL: strings.TrimRight(getEnv("BACKEND_API_URL", ""), "/"),
		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		ScenariosFile: getEnv("SCENARIOS_FILE", ""),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Telemetry: TelemetryConfig{
			Enabled:    getEnvBool("TELEMETRY_ENABLED", true),
			Path:       getEnv("TELEMETRY_PATH", "./data/logs/telemetry.ndjson"),
			QueueSize:  queueSize,
			MaxSizeMB:  getEnvInt("TELEMETRY_MAX_SIZE_MB", 50),
			MaxBackups: getEnvInt("TELEMETRY_MAX_BACKUPS", 5),
		},
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Storage.Prefix == "" {
		return fmt.Errorf("STORAGE_PREFIX cannot be empty")
	}
	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty when STORAGE_DRIVER=sqlite")
		}
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("REDIS_URL cannot be empty when STORAGE_DRIVER=redis")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Telemetry.Enabled && c.Telemetry.Path == "" {
		return fmt.Errorf("TELEMETRY_PATH cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// geminiAPIKey prefers the server-only variable. The NEXT_PUBLIC_ name is
// still honoured for deployments that only ever set the client-exposed one.
func geminiAPIKey() string {
	if key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv("NEXT_PUBLIC_GEMINI_API_KEY"))
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
