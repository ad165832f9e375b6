// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port for the redis client
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TypesenseConfig configures the response search index. An empty Host disables it.
type TypesenseConfig struct {
	Host   string
	Port   int
	APIKey string
}

// QueueConfig mirrors the retry/retention policy of the audit queue
type QueueConfig struct {
	Backend       string // redis, memory or inngest
	Name          string
	MaxAttempts   int
	BackoffBase   time.Duration
	KeepCompleted int
	KeepFailed    int
	Concurrency   int // jobs processed in parallel per worker process
}

type ProviderConfig struct {
	Enabled        []string
	OpenAIModel    string
	AnthropicModel string
	Timeout        time.Duration
	RatePerSecond  float64
}

type Config struct {
	Port              string
	Environment       string
	LogLevel          string
	StorageBackend    string // postgres or memory
	InngestEventKey   string
	InngestSigningKey string
	OpenAIAPIKey      string
	AnthropicAPIKey   string
	SlackWebhookURL   string
	DatabaseURL       string
	PromptConcurrency int
	StaleAfter        time.Duration
	Database          DatabaseConfig
	Redis             RedisConfig
	Typesense         TypesenseConfig
	Queue             QueueConfig
	Providers         ProviderConfig
}

// DatabaseConfig holds the postgres connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
}

// DSN renders the lib/pq key/value connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func Load() *Config {
	config := &Config{
		Port:              getEnv("PORT", "8000"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		StorageBackend:    getEnv("STORAGE_BACKEND", "postgres"),
		InngestEventKey:   os.Getenv("INNGEST_EVENT_KEY"),
		InngestSigningKey: os.Getenv("INNGEST_SIGNING_KEY"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		SlackWebhookURL:   os.Getenv("SLACK_WEBHOOK_URL"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		PromptConcurrency: getEnvInt("PROMPT_CONCURRENCY", 4),
		StaleAfter:        time.Duration(getEnvInt("STALE_SESSION_MINUTES", 60)) * time.Minute,
	}

	// Parse database configuration
	dbConfig, err := parseDatabaseConfig()
	if err != nil {
		// If DATABASE_URL parsing fails, try individual env vars as fallback
		dbConfig = DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			Name:            getEnv("DB_NAME", "ai_visibility_tracker"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
		}
	}
	config.Database = dbConfig

	config.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnvInt("REDIS_PORT", 6379),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
	}
	config.Typesense = TypesenseConfig{
		Host:   os.Getenv("TYPESENSE_HOST"),
		Port:   getEnvInt("TYPESENSE_PORT", 8108),
		APIKey: getEnv("TYPESENSE_API_KEY", "xyz"),
	}
	config.Queue = QueueConfig{
		Backend:       getEnv("QUEUE_BACKEND", "redis"),
		Name:          getEnv("QUEUE_NAME", "audit"),
		MaxAttempts:   getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
		BackoffBase:   time.Duration(getEnvInt("QUEUE_BACKOFF_MS", 5000)) * time.Millisecond,
		KeepCompleted: getEnvInt("QUEUE_KEEP_COMPLETED", 100),
		KeepFailed:    getEnvInt("QUEUE_KEEP_FAILED", 50),
		Concurrency:   getEnvInt("WORKER_CONCURRENCY", 2),
	}
	config.Providers = ProviderConfig{
		Enabled:        getEnvList("PROVIDERS", []string{"openai"}),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4.1"),
		AnthropicModel: getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		Timeout:        time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 90)) * time.Second,
		RatePerSecond:  getEnvFloat("PROVIDER_RATE_PER_SECOND", 2),
	}

	return config
}

// IsDevelopment reports whether the service runs locally
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == ""
}

func parseDatabaseConfig() (DatabaseConfig, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL not set")
	}

	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if len(parsedURL.Path) < 2 {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL has no database name")
	}

	config := DatabaseConfig{
		Host:            parsedURL.Hostname(),
		Port:            5432, // default
		User:            parsedURL.User.Username(),
		Name:            parsedURL.Path[1:], // remove leading slash
		SSLMode:         getEnv("DB_SSLMODE", "require"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
	}

	if password, ok := parsedURL.User.Password(); ok {
		config.Password = password
	}

	if parsedURL.Port() != "" {
		if port, err := strconv.Atoi(parsedURL.Port()); err == nil {
			config.Port = port
		}
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(strings.ToLower(part)); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
