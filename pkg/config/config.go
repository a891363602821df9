// Package config loads engine configuration from config.yaml with
// environment variable overrides. Secrets come from the environment only.
package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for partsbench-engine.
// Environment variables always override YAML values for fields that support
// both. Secrets (database password, AI keys) are env-only (yaml:"-").
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// MigrationsPath points at the SQL migration files applied on startup.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// AI configuration for the insight generator (optional).
	AI AIConfig `yaml:"ai"`

	// Recommendations tunes the suggestion engine defaults.
	Recommendations RecommendationConfig `yaml:"recommendations"`

	// Health tunes the failure-rate health tracker.
	Health HealthConfig `yaml:"health"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"partsbench"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"partsbench_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// AIConfig holds the optional LLM endpoint used for purchasing insights.
// When Provider is empty the engine serves heuristic insights only.
type AIConfig struct {
	// Provider selects the client: "openai" (any OpenAI-compatible endpoint)
	// or "anthropic". Empty disables LLM calls entirely.
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:""`
	Endpoint string `yaml:"endpoint" env:"AI_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"AI_MODEL" env-default:""`
	APIKey   string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML
}

// Enabled reports whether an LLM provider is configured.
func (c *AIConfig) Enabled() bool {
	return c.Provider != "" && c.Model != ""
}

// RecommendationConfig tunes suggestion filtering. Scoring weights themselves
// are fixed constants in the scorer so results stay reproducible.
type RecommendationConfig struct {
	// SuggestionThreshold is the default minimum confidence for project
	// suggestions when the caller does not supply one.
	SuggestionThreshold float64 `yaml:"suggestion_threshold" env:"SUGGESTION_THRESHOLD" env-default:"0.4"`
}

// HealthConfig tunes the rolling-window failure tracker.
type HealthConfig struct {
	// WindowSeconds is the rolling window over which errors are counted.
	WindowSeconds int `yaml:"window_seconds" env:"HEALTH_WINDOW_SECONDS" env-default:"300"`
	// ErrorThreshold is the per-kind error count that marks the system
	// unhealthy within the window.
	ErrorThreshold int `yaml:"error_threshold" env:"HEALTH_ERROR_THRESHOLD" env-default:"5"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When config.yaml is absent (containers configured purely via
// env), configuration is read from the environment alone.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Recommendations.SuggestionThreshold < 0 || c.Recommendations.SuggestionThreshold > 1 {
		return fmt.Errorf("suggestion_threshold must be in [0,1], got %v", c.Recommendations.SuggestionThreshold)
	}
	if c.Health.WindowSeconds <= 0 {
		return fmt.Errorf("health window_seconds must be positive")
	}
	if c.Health.ErrorThreshold <= 0 {
		return fmt.Errorf("health error_threshold must be positive")
	}
	if c.AI.Provider != "" && c.AI.Provider != "openai" && c.AI.Provider != "anthropic" {
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
