// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port             string
	Environment      string
	LogLevel         string
	DBPath           string
	AllowedOrigins   string
	MaxMessageLength int
	RequestTimeout   time.Duration
	OpenAI           OpenAIConfig
	RateLimit        RateLimitConfig
	Retry            RetryConfig
	Pipeline         PipelineConfig
	ConversationLog  ConversationLogConfig
}

// OpenAIConfig configures the text-generation backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// RateLimitConfig configures per-client admission.
type RateLimitConfig struct {
	PerMinute int
	Window    time.Duration
}

// RetryConfig configures the backoff caller.
type RetryConfig struct {
	// MaxRetries is the total number of calls per external operation.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64
}

// PipelineConfig bounds reply generation.
type PipelineConfig struct {
	MaxAttempts       int
	HistoryWindow     int
	ConsistencyWindow int
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8000"),
		Environment:      strings.ToLower(getEnv("ENVIRONMENT", "development")),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		DBPath:           getEnv("DB_PATH", "./data/debate.db"),
		AllowedOrigins:   getEnv("ALLOWED_ORIGINS", "*"),
		MaxMessageLength: getEnvInt("MAX_MESSAGE_LENGTH", 5000),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 120*time.Second),
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o"),
			Timeout: getEnvDuration("OPENAI_TIMEOUT", 25*time.Second),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
			Window:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Retry: RetryConfig{
			MaxRetries: getEnvInt("MAX_RETRIES", 3),
			BaseDelay:  getEnvDuration("RETRY_BASE_DELAY", time.Second),
			MaxDelay:   getEnvDuration("RETRY_MAX_DELAY", 10*time.Second),
			Jitter:     0.1,
		},
		Pipeline: PipelineConfig{
			MaxAttempts:       getEnvInt("MAX_ATTEMPTS", 3),
			HistoryWindow:     getEnvInt("HISTORY_WINDOW", 6),
			ConsistencyWindow: 4,
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
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
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be > 0")
	}
	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Retry.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be > 0")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("RETRY_BASE_DELAY must be > 0 and <= RETRY_MAX_DELAY")
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("MAX_ATTEMPTS must be > 0")
	}
	if c.Pipeline.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if c.OpenAI.Timeout <= 0 {
		return fmt.Errorf("OPENAI_TIMEOUT must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsProduction reports whether internal error details must be hidden.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// EnvFiles returns the dotenv files to load for environment, most specific first.
func EnvFiles(environment string) []string {
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "production", "prod":
		return []string{".env.prod", ".env"}
	case "", "development", "dev":
		return []string{".env.dev", ".env"}
	default:
		return []string{".env." + strings.ToLower(environment), ".env"}
	}
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

// getEnvDuration accepts Go durations ("1.5s") or plain seconds ("25").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
