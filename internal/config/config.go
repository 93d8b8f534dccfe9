package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort      string `validate:"required,numeric"`
	ProgressBackend string `validate:"oneof=sqlite sqlite3 postgres postgresql mysql file"`
	DatabasePath    string
	DatabaseURL     string `validate:"required_if=ProgressBackend postgres,required_if=ProgressBackend postgresql,required_if=ProgressBackend mysql"`
	ProgressFile    string `validate:"required_if=ProgressBackend file"`
	ProgressKey     string `validate:"required"`
	CatalogPath     string
	SubmitRateLimit int `validate:"gte=0"`

	// Sessions unused for this long are exited; 0 keeps them until exit
	SessionIdleTimeout time.Duration `validate:"gte=0s"`

	// Completion e-mail (disabled when SESFromEmail or NotifyEmail is empty)
	AWSRegion    string
	SESFromEmail string
	SESFromName  string
	NotifyEmail  string `validate:"omitempty,email"`

	Debug bool
}

// DatabaseType returns the SQL dialect name for the progress backend, or ""
// when progress is kept in a plain file
func (c *Config) DatabaseType() string {
	switch strings.ToLower(c.ProgressBackend) {
	case "file":
		return ""
	case "sqlite3":
		return "sqlite"
	case "postgresql":
		return "postgres"
	default:
		return strings.ToLower(c.ProgressBackend)
	}
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	cfg := &Config{
		ServerPort:         getEnv("PORT", "8080"),
		ProgressBackend:    strings.ToLower(getEnv("PROGRESS_BACKEND", "sqlite")),
		DatabasePath:       getEnv("DB_PATH", "./wordmoment.db"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		ProgressFile:       getEnv("PROGRESS_FILE", "./wordmoment_progress.json"),
		ProgressKey:        getEnv("PROGRESS_KEY", "wordmoment_progress"),
		CatalogPath:        getEnv("CATALOG_PATH", ""),
		SubmitRateLimit:    getEnvInt("SUBMIT_RATE_LIMIT", 30),
		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),
		SESFromName:        getEnv("SES_FROM_NAME", "WordMoment"),
		NotifyEmail:        getEnv("NOTIFY_EMAIL", ""),
		Debug:              getEnvBool("DEBUG", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for missing or inconsistent values
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid integer for %s (%q), using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid duration for %s (%q), using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
