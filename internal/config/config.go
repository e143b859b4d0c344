// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables with the KNOWBOT_ prefix (runtime override)
//  2. Config file (config.yaml in the working directory or --config path)
//  3. Default values
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates the OpenAI API key is missing.
	ErrMissingAPIKey = errors.New("missing OpenAI API key")

	// ErrInvalidModelName indicates the chat model name is not supported.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbeddingModel indicates the embedding model name is empty.
	ErrInvalidEmbeddingModel = errors.New("invalid embedding model")

	// ErrInvalidDriver indicates the database driver is not supported.
	ErrInvalidDriver = errors.New("invalid database driver")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidHistoryWindow indicates the prompt history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")
)

// Database driver identifiers used in Config.Database.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Chat model identifiers. The "lite" model is the default; "pro" is the
// stronger, more expensive option. Accounts switch between them at runtime.
const (
	ModelLite = "gpt-4o-mini"
	ModelPro  = "gpt-4o"
)

// DefaultEmbeddingModel is the OpenAI embedding model used for the vector index.
const DefaultEmbeddingModel = "text-embedding-3-large"

const (
	// DefaultTopK is the number of passages retrieved per query.
	DefaultTopK = 5

	// MaxTopK bounds caller-supplied k values.
	MaxTopK = 20

	// DefaultHistoryWindow is the number of trailing session messages
	// included when composing a prompt. Full history stays in storage.
	DefaultHistoryWindow = 10

	// MaxHistoryWindow is the absolute maximum window size.
	MaxHistoryWindow = 50
)

// DatabaseConfig holds the relational store settings.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" json:"driver"` // "sqlite" (default) or "postgres"
	DSN    string `mapstructure:"dsn" json:"dsn"`
}

// Config stores application configuration.
// SECURITY: the API key is never logged; see String().
type Config struct {
	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`

	Database DatabaseConfig `mapstructure:"database" json:"database"`

	OpenAIAPIKey   string `mapstructure:"openai_api_key" json:"-"`
	EmbeddingModel string `mapstructure:"embedding_model" json:"embedding_model"`
	DefaultModel   string `mapstructure:"default_model" json:"default_model"`

	TopK          int `mapstructure:"top_k" json:"top_k"`
	HistoryWindow int `mapstructure:"history_window" json:"history_window"`

	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load reads configuration from defaults, an optional config file, and
// environment variables. path may be empty to skip the file source.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_addr", "127.0.0.1:8090")
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "knowbot.db")
	v.SetDefault("embedding_model", DefaultEmbeddingModel)
	v.SetDefault("default_model", ModelLite)
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("history_window", DefaultHistoryWindow)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetEnvPrefix("KNOWBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: set KNOWBOT_OPENAI_API_KEY", ErrMissingAPIKey)
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: %q (must be %q or %q)",
			ErrInvalidDriver, c.Database.Driver, DriverSQLite, DriverPostgres)
	}

	if c.EmbeddingModel == "" {
		return ErrInvalidEmbeddingModel
	}

	if !ValidModel(c.DefaultModel) {
		return fmt.Errorf("%w: %q (must be %q or %q)",
			ErrInvalidModelName, c.DefaultModel, ModelLite, ModelPro)
	}

	if c.TopK < 1 || c.TopK > MaxTopK {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidTopK, c.TopK, MaxTopK)
	}

	if c.HistoryWindow < 1 || c.HistoryWindow > MaxHistoryWindow {
		return fmt.Errorf("%w: %d (must be 1..%d)",
			ErrInvalidHistoryWindow, c.HistoryWindow, MaxHistoryWindow)
	}

	return nil
}

// ValidModel reports whether name is a supported chat model.
func ValidModel(name string) bool {
	return name == ModelLite || name == ModelPro
}

// String implements fmt.Stringer without exposing the API key.
func (c *Config) String() string {
	key := "unset"
	if c.OpenAIAPIKey != "" {
		key = "***"
	}
	return fmt.Sprintf("Config{addr=%s driver=%s model=%s embedder=%s top_k=%d window=%d api_key=%s}",
		c.HTTPAddr, c.Database.Driver, c.DefaultModel, c.EmbeddingModel, c.TopK, c.HistoryWindow, key)
}
