package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Provider validation
	if c.APIKey == "" {
		return fmt.Errorf("%w: set CORVID_API_KEY or OPENAI_API_KEY, or api_key in config.yaml",
			ErrMissingAPIKey)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model cannot be empty", ErrInvalidModel)
	}
	if c.EmbedModel == "" {
		return fmt.Errorf("%w: embed_model cannot be empty", ErrInvalidEmbedModel)
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 1_000_000 {
		return fmt.Errorf("%w: must be between 1 and 1,000,000, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// Conversation validation
	if strings.TrimSpace(c.Tenant) == "" {
		return fmt.Errorf("%w: tenant cannot be empty", ErrInvalidTenant)
	}
	if c.TokenBudget < 1 || c.TokenBudget > 1_000_000 {
		return fmt.Errorf("%w: must be between 1 and 1,000,000, got %d", ErrInvalidTokenBudget, c.TokenBudget)
	}

	// Ingestion validation catches a bad chunking config at startup
	// instead of on first ingest.
	if c.MaxChunkSize < 100 {
		return fmt.Errorf("%w: max_chunk_size must be at least 100, got %d", ErrInvalidChunking, c.MaxChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.MaxChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, max_chunk_size), got %d", ErrInvalidChunking, c.ChunkOverlap)
	}

	return c.validateStorage()
}

func (c *Config) validateStorage() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "corvid_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"warning", "change postgres_password for production deployments")
	}

	// Modern SSL modes only; allow/prefer are deprecated.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
