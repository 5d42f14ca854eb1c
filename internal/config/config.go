// Package config provides service configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (prefix KNOWLEDGE_, runtime override)
//  2. Config file (~/.knowledge/config.yaml)
//  3. Default values
//
// Categories:
//   - AI: embedding provider and model selection
//   - Storage: PostgreSQL connection for the vector index (see storage.go)
//   - Objects: S3-compatible object store for raw files and records
//   - Ingest: chunking budgets
//   - Tracing: OTLP agent endpoint
//
// Sensitive values (passwords, secret keys) are never logged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedderModel indicates the embedder model name is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidChunkBudget indicates the chunking token budgets are out of range.
	ErrInvalidChunkBudget = errors.New("invalid chunk budget")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidObjectStore indicates the object store settings are incomplete.
	ErrInvalidObjectStore = errors.New("invalid object store configuration")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")
)

// Embedding provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// DefaultGeminiEmbedderModel is the default Gemini embedder model.
// gemini-embedding-001 supports truncation to 768 dimensions via
// OutputDimensionality; the vectors table schema uses 768.
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// Config stores service configuration.
type Config struct {
	// Embedding provider configuration
	Provider      string `mapstructure:"provider"`       // "gemini" (default), "ollama", "openai"
	EmbedderModel string `mapstructure:"embedder_model"` // e.g. "gemini-embedding-001"
	OllamaHost    string `mapstructure:"ollama_host"`

	// Chunking budgets, in approximate tokens (4 chars per token)
	ChunkMaxTokens     int `mapstructure:"chunk_max_tokens"`
	ChunkOverlapTokens int `mapstructure:"chunk_overlap_tokens"`

	// PostgreSQL connection (vector index)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// S3-compatible object store (raw files, metadata, processing status)
	ObjectStoreEndpoint  string `mapstructure:"objectstore_endpoint"`
	ObjectStoreAccessKey string `mapstructure:"objectstore_access_key"`
	ObjectStoreSecretKey string `mapstructure:"objectstore_secret_key"`
	ObjectStoreBucket    string `mapstructure:"objectstore_bucket"`
	ObjectStoreUseSSL    bool   `mapstructure:"objectstore_use_ssl"`

	// HTTP server
	ServerAddr string `mapstructure:"server_addr"`

	// Tracing (OTLP HTTP to a local agent)
	Tracing TracingConfig `mapstructure:"tracing"`

	// Logging
	LogLevel string `mapstructure:"log_level"` // "debug", "info", "warn", "error"
	LogJSON  bool   `mapstructure:"log_json"`
}

// TracingConfig holds OTLP trace export settings.
type TracingConfig struct {
	AgentHost   string `mapstructure:"agent_host"` // host:port of the local agent, default localhost:4318
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("KNOWLEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults plus env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("chunk_max_tokens", 500)
	v.SetDefault("chunk_overlap_tokens", 50)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "knowledge")
	v.SetDefault("postgres_dbname", "knowledge")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("objectstore_endpoint", "localhost:9000")
	v.SetDefault("objectstore_bucket", "knowledge")
	v.SetDefault("objectstore_use_ssl", false)

	v.SetDefault("server_addr", "127.0.0.1:3500")

	v.SetDefault("tracing.agent_host", "")
	v.SetDefault("tracing.service_name", "knowledge")
	v.SetDefault("tracing.environment", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// configDir returns the per-user configuration directory, creating it if
// needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".knowledge")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}
