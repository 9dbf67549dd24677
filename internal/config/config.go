package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for screening-engine
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Backend   BackendConfig
	Judge     JudgeConfig
	Docker    DockerConfig
	Session   SessionConfig
	Languages LanguagesConfig
	Cleanup   CleanupConfig
	Auth      AuthConfig
	LogLevel  slog.Level
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds PostgreSQL configuration. An empty DSN selects the
// in-memory repository.
type DatabaseConfig struct {
	DSN           string
	MigrationsDir string
	MaxOpenConns  int
	MaxIdleConns  int
}

// RedisConfig holds Redis configuration. An empty address keeps the
// judge concurrency limit process-local.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	LockTTL  time.Duration
}

// BackendConfig points at the owning assessment backend
type BackendConfig struct {
	URL                  string
	Timeout              time.Duration
	CandidateLookupURL   string
	CandidateLookupToken string
}

// JudgeConfig configures code execution
type JudgeConfig struct {
	Driver        string // judge0 | docker
	URL           string
	RapidAPIKey   string
	RapidAPIHost  string
	AuthToken     string
	PollInterval  time.Duration
	MaxAttempts   int
	SubmitTimeout time.Duration
	PollTimeout   time.Duration
	MaxConcurrent int
	QueueTimeout  time.Duration
}

// DockerConfig configures the local docker judge
type DockerConfig struct {
	Host        string
	PullPolicy  string
	MemoryLimit string
	RunTimeout  time.Duration
}

// SessionConfig configures test sessions
type SessionConfig struct {
	TickInterval    time.Duration
	Retention       time.Duration
	DefaultDuration int
	SubmitTimeout   time.Duration
}

// LanguagesConfig points at an optional language catalog file
type LanguagesConfig struct {
	File string
}

// CleanupConfig holds cleanup worker configuration
type CleanupConfig struct {
	Interval time.Duration
}

// AuthConfig holds bootstrap API keys for HR clients
type AuthConfig struct {
	APIKeys []string
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("DATABASE_DSN", ""),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
			MaxOpenConns:  getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			LockTTL:  getEnvAsDuration("REDIS_LOCK_TTL", 30*time.Second),
		},
		Backend: BackendConfig{
			URL:                  strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
			Timeout:              getEnvAsDuration("BACKEND_TIMEOUT", 90*time.Second),
			CandidateLookupURL:   getEnv("CANDIDATE_LOOKUP_URL", ""),
			CandidateLookupToken: getEnv("CANDIDATE_LOOKUP_TOKEN", ""),
		},
		Judge: JudgeConfig{
			Driver:        getEnv("JUDGE_DRIVER", "judge0"),
			URL:           strings.TrimRight(getEnv("JUDGE0_URL", "https://judge0-ce.p.rapidapi.com"), "/"),
			RapidAPIKey:   getEnv("JUDGE0_API_KEY", ""),
			RapidAPIHost:  getEnv("JUDGE0_HOST", "judge0-ce.p.rapidapi.com"),
			AuthToken:     getEnv("JUDGE0_AUTH_TOKEN", ""),
			PollInterval:  getEnvAsDuration("JUDGE_POLL_INTERVAL", 500*time.Millisecond),
			MaxAttempts:   getEnvAsInt("JUDGE_MAX_ATTEMPTS", 20),
			SubmitTimeout: getEnvAsDuration("JUDGE_SUBMIT_TIMEOUT", 10*time.Second),
			PollTimeout:   getEnvAsDuration("JUDGE_POLL_TIMEOUT", 5*time.Second),
			MaxConcurrent: getEnvAsInt("JUDGE_MAX_CONCURRENT", 4),
			QueueTimeout:  getEnvAsDuration("JUDGE_QUEUE_TIMEOUT", 15*time.Second),
		},
		Docker: DockerConfig{
			Host:        getEnv("DOCKER_HOST", "unix:///var/run/docker.sock"),
			PullPolicy:  getEnv("DOCKER_PULL_POLICY", "if-not-present"),
			MemoryLimit: getEnv("DOCKER_MEMORY_LIMIT", "256m"),
			RunTimeout:  getEnvAsDuration("DOCKER_RUN_TIMEOUT", 8*time.Second),
		},
		Session: SessionConfig{
			TickInterval:    getEnvAsDuration("SESSION_TICK_INTERVAL", time.Second),
			Retention:       getEnvAsDuration("SESSION_RETENTION", 30*time.Minute),
			DefaultDuration: getEnvAsInt("SESSION_DEFAULT_DURATION", 20),
			SubmitTimeout:   getEnvAsDuration("SESSION_SUBMIT_TIMEOUT", 90*time.Second),
		},
		Languages: LanguagesConfig{
			File: getEnv("LANGUAGES_FILE", ""),
		},
		Cleanup: CleanupConfig{
			Interval: getEnvAsDuration("CLEANUP_INTERVAL", time.Minute),
		},
		Auth: AuthConfig{
			APIKeys: getEnvAsList("API_KEYS"),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Backend.URL == "" {
		return fmt.Errorf("backend URL is required")
	}

	switch c.Judge.Driver {
	case "judge0":
		if c.Judge.URL == "" {
			return fmt.Errorf("judge0 URL is required")
		}
	case "docker":
	default:
		return fmt.Errorf("unknown judge driver: %q", c.Judge.Driver)
	}

	if c.Judge.PollInterval <= 0 {
		return fmt.Errorf("judge poll interval must be positive")
	}

	if c.Judge.MaxAttempts < 1 {
		return fmt.Errorf("judge max attempts must be at least 1: %d", c.Judge.MaxAttempts)
	}

	if c.Judge.MaxConcurrent < 1 {
		return fmt.Errorf("judge max concurrent runs must be at least 1: %d", c.Judge.MaxConcurrent)
	}

	if c.Session.TickInterval <= 0 {
		return fmt.Errorf("session tick interval must be positive")
	}

	if c.Session.DefaultDuration < 1 || c.Session.DefaultDuration > 180 {
		return fmt.Errorf("invalid default session duration: %d", c.Session.DefaultDuration)
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	if value, exists := os.LookupEnv(key); exists {
		var level slog.Level
		if err := level.UnmarshalText([]byte(value)); err == nil {
			return level
		}
	}
	return defaultValue
}
