// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.kagaj/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive data (the PostgreSQL password) is masked in MarshalJSON so the
// effective configuration can be logged safely.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidChunkSize indicates chunk_size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidChunkOverlap indicates chunk_overlap is negative or would
	// stall the splitter window.
	ErrInvalidChunkOverlap = errors.New("invalid chunk overlap")

	// ErrInvalidTopK indicates top_k is out of range.
	ErrInvalidTopK = errors.New("invalid top k")

	// ErrInvalidConfidenceThreshold indicates confidence_threshold is not
	// a similarity score.
	ErrInvalidConfidenceThreshold = errors.New("invalid confidence threshold")

	// ErrInvalidOllamaHost indicates ollama_host is empty.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidModel indicates a model name is empty.
	ErrInvalidModel = errors.New("invalid model name")

	// ErrInvalidEmbedWorkers indicates embed_workers is out of range.
	ErrInvalidEmbedWorkers = errors.New("invalid embed workers")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidServerAddr indicates server_addr is empty.
	ErrInvalidServerAddr = errors.New("invalid server address")
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON. When
// adding new sensitive fields, update MarshalJSON.
type Config struct {
	// Ollama connection and models
	OllamaHost      string `mapstructure:"ollama_host" json:"ollama_host"`
	GenerationModel string `mapstructure:"generation_model" json:"generation_model"`
	EmbeddingModel  string `mapstructure:"embedding_model" json:"embedding_model"`

	// Chunking
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval and answering
	TopK                int     `mapstructure:"top_k" json:"top_k"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" json:"confidence_threshold"`

	// Ingestion
	EmbedWorkers      int           `mapstructure:"embed_workers" json:"embed_workers"`
	EmbedTimeout      time.Duration `mapstructure:"embed_timeout" json:"embed_timeout"`
	GenerateTimeout   time.Duration `mapstructure:"generate_timeout" json:"generate_timeout"`
	ExtractTimeout    time.Duration `mapstructure:"extract_timeout" json:"extract_timeout"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" json:"reconcile_interval"`

	// Storage
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server
	ServerAddr string  `mapstructure:"server_addr" json:"server_addr"`
	RateRPS    float64 `mapstructure:"rate_rps" json:"rate_rps"`
	RateBurst  int     `mapstructure:"rate_burst" json:"rate_burst"`

	// Logging
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(home, ".kagaj"))
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, the defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values")
	}

	return finish(v)
}

// finish unmarshals, applies DATABASE_URL, and validates. Split out so
// tests can exercise it against a prepared viper instance.
func finish(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("generation_model", "llama3.1")
	v.SetDefault("embedding_model", "nomic-embed-text")

	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)

	v.SetDefault("top_k", 5)
	v.SetDefault("confidence_threshold", 0.7)

	v.SetDefault("embed_workers", 1)
	v.SetDefault("embed_timeout", 30*time.Second)
	v.SetDefault("generate_timeout", 2*time.Minute)
	v.SetDefault("extract_timeout", time.Minute)
	v.SetDefault("reconcile_interval", 15*time.Minute)

	// PostgreSQL defaults matching docker-compose.yml
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "kagaj")
	v.SetDefault("postgres_password", "kagaj_dev_password")
	v.SetDefault("postgres_db_name", "kagaj")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("server_addr", ":8080")
	v.SetDefault("rate_rps", 10.0)
	v.SetDefault("rate_burst", 20)

	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")
}

// bindEnvVariables binds runtime override variables explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("ollama_host", "KAGAJ_OLLAMA_HOST")
	mustBind("generation_model", "KAGAJ_GENERATION_MODEL")
	mustBind("embedding_model", "KAGAJ_EMBEDDING_MODEL")
	mustBind("server_addr", "KAGAJ_SERVER_ADDR")
	mustBind("log_level", "KAGAJ_LOG_LEVEL")
	mustBind("postgres_password", "KAGAJ_POSTGRES_PASSWORD")

	// NOTE: DATABASE_URL is read directly in parseDatabaseURL, not via
	// viper, because it fans out into several postgres_* fields.
}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c.OllamaHost == "" {
		return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
	}
	if c.GenerationModel == "" {
		return fmt.Errorf("%w: generation_model cannot be empty", ErrInvalidModel)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding_model cannot be empty", ErrInvalidModel)
	}

	if c.ChunkSize < 100 || c.ChunkSize > 100_000 {
		return fmt.Errorf("%w: must be between 100 and 100000, got %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: must not be negative, got %d", ErrInvalidChunkOverlap, c.ChunkOverlap)
	}
	// An overlap >= chunk_size would stop the splitter window advancing.
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: must be smaller than chunk_size %d, got %d", ErrInvalidChunkOverlap, c.ChunkSize, c.ChunkOverlap)
	}

	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold >= 1 {
		return fmt.Errorf("%w: must be between 0 and 1 exclusive, got %.2f", ErrInvalidConfidenceThreshold, c.ConfidenceThreshold)
	}

	if c.EmbedWorkers < 1 || c.EmbedWorkers > 64 {
		return fmt.Errorf("%w: must be between 1 and 64, got %d", ErrInvalidEmbedWorkers, c.EmbedWorkers)
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

	if c.ServerAddr == "" {
		return fmt.Errorf("%w: server_addr cannot be empty", ErrInvalidServerAddr)
	}

	return nil
}
