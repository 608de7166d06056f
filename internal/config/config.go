// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (CORVID_* overrides, DATABASE_URL)
//  2. Config file (~/.corvid/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive fields (API key, database password) are masked in MarshalJSON
// and String so the config can be logged safely. Validation uses sentinel
// errors checkable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/corvus-ai/corvid/internal/chunker"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModel indicates the chat model name is invalid.
	ErrInvalidModel = errors.New("invalid model name")

	// ErrInvalidEmbedModel indicates the embedding model name is invalid.
	ErrInvalidEmbedModel = errors.New("invalid embedding model name")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidTokenBudget indicates the history token budget is out of range.
	ErrInvalidTokenBudget = errors.New("invalid token budget")

	// ErrInvalidChunking indicates the chunk size or overlap is out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTenant indicates the tenant identifier is empty.
	ErrInvalidTenant = errors.New("invalid tenant")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys), update MarshalJSON.
type Config struct {
	// Provider configuration (any OpenAI-compatible endpoint)
	BaseURL     string  `mapstructure:"base_url" json:"base_url"`
	APIKey      string  `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	Model       string  `mapstructure:"model" json:"model"`
	EmbedModel  string  `mapstructure:"embed_model" json:"embed_model"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Conversation configuration
	Tenant       string `mapstructure:"tenant" json:"tenant"`
	TokenBudget  int    `mapstructure:"token_budget" json:"token_budget"`
	SystemPrompt string `mapstructure:"system_prompt" json:"system_prompt"`

	// Ingestion configuration
	MaxChunkSize int `mapstructure:"max_chunk_size" json:"max_chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability configuration (see observability.go)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return cfg, nil
}

// LoadStorage loads configuration but only validates the storage
// settings. Commands that never talk to the model provider, such as
// migrations, use it so they work without an API key.
func LoadStorage() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateStorage(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return cfg, nil
}

func load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".corvid")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Provider defaults
	v.SetDefault("base_url", "https://api.openai.com/v1")
	v.SetDefault("model", "gpt-4o-mini")
	v.SetDefault("embed_model", "text-embedding-3-small")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 2048)

	// Conversation defaults
	v.SetDefault("tenant", "default")
	v.SetDefault("token_budget", 8000)

	// Ingestion defaults
	v.SetDefault("max_chunk_size", chunker.DefaultMaxChunkSize)
	v.SetDefault("chunk_overlap", chunker.DefaultOverlap)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "corvid")
	v.SetDefault("postgres_password", "corvid_dev_password")
	v.SetDefault("postgres_db_name", "corvid")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "corvid")
	v.SetDefault("tracing.environment", "dev")
	v.SetDefault("tracing.sample_ratio", 1.0)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment overrides explicitly. The API key has
// no default on purpose, so it can only arrive from the environment or an
// explicitly written config file.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here means a typo below.
	mustBind := func(key string, envVars ...string) {
		if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q: %v", key, err))
		}
	}

	mustBind("api_key", "CORVID_API_KEY", "OPENAI_API_KEY")
	mustBind("base_url", "CORVID_BASE_URL")
	mustBind("model", "CORVID_MODEL")
	mustBind("embed_model", "CORVID_EMBED_MODEL")
	mustBind("tenant", "CORVID_TENANT")
	mustBind("log_level", "CORVID_LOG_LEVEL")
	mustBind("tracing.enabled", "CORVID_TRACING_ENABLED")
	mustBind("tracing.endpoint", "CORVID_TRACING_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid substring matching against the real secret.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 bytes or fewer
// are fully masked; longer ones keep the first and last two characters for
// debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.APIKey = maskSecret(a.APIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
