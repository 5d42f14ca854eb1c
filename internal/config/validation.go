package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validSSLModes are the PostgreSQL sslmode values pgx accepts.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for the serve path. It returns the first
// problem found, wrapped around a package sentinel so callers can use
// errors.Is.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
		// API keys are read from provider-standard env vars by the plugins;
		// checked at setup where the plugin is initialized.
	case ProviderOllama:
		if err := validateOllamaHost(c.OllamaHost); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q (expected gemini, ollama, or openai)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: empty model name", ErrInvalidEmbedderModel)
	}

	if c.ChunkMaxTokens < 50 || c.ChunkMaxTokens > 8192 {
		return fmt.Errorf("%w: chunk_max_tokens=%d (expected 50-8192)", ErrInvalidChunkBudget, c.ChunkMaxTokens)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkMaxTokens {
		return fmt.Errorf("%w: chunk_overlap_tokens=%d must be in [0, chunk_max_tokens)", ErrInvalidChunkBudget, c.ChunkOverlapTokens)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: empty database name", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if strings.TrimSpace(c.ObjectStoreEndpoint) == "" {
		return fmt.Errorf("%w: empty endpoint", ErrInvalidObjectStore)
	}
	if strings.TrimSpace(c.ObjectStoreBucket) == "" {
		return fmt.Errorf("%w: empty bucket", ErrInvalidObjectStore)
	}

	return nil
}

func validateOllamaHost(host string) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidOllamaHost)
	}
	u, err := url.Parse(host)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q (expected http(s)://host:port)", ErrInvalidOllamaHost, host)
	}
	return nil
}
