package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for duraeco-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// MigrationsPath is the directory containing SQL migration files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// AI model endpoints
	AI AIConfig `yaml:"ai"`

	// Blob storage for report images and generated artifacts
	Storage StorageConfig `yaml:"storage"`

	// Background analysis pipeline settings
	Analysis AnalysisConfig `yaml:"analysis"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWTSecret is the shared HMAC secret used to verify bearer tokens.
	JWTSecret string `yaml:"-" env:"JWT_SECRET"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"duraeco"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"duraeco_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// AIConfig holds endpoints and models for the AI providers.
// Chat, vision, and embedding concerns can point at different
// OpenAI-compatible endpoints.
type AIConfig struct {
	ChatBaseURL string `yaml:"chat_base_url" env:"AI_CHAT_BASE_URL" env-default:"https://api.openai.com/v1"`
	ChatModel   string `yaml:"chat_model" env:"AI_CHAT_MODEL" env-default:"gpt-4o-mini"`
	ChatAPIKey  string `yaml:"-" env:"AI_CHAT_API_KEY"` // Secret - not in YAML

	VisionBaseURL string `yaml:"vision_base_url" env:"AI_VISION_BASE_URL" env-default:""`
	VisionModel   string `yaml:"vision_model" env:"AI_VISION_MODEL" env-default:""`
	VisionAPIKey  string `yaml:"-" env:"AI_VISION_API_KEY"` // Secret - not in YAML

	EmbeddingBaseURL string `yaml:"embedding_base_url" env:"AI_EMBEDDING_BASE_URL" env-default:""`
	EmbeddingModel   string `yaml:"embedding_model" env:"AI_EMBEDDING_MODEL" env-default:""`
	EmbeddingAPIKey  string `yaml:"-" env:"AI_EMBEDDING_API_KEY"` // Secret - not in YAML

	// Anthropic is an optional secondary provider used for plain-text
	// fallback completions when the primary chat model is unavailable.
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
	AnthropicModel  string `yaml:"anthropic_model" env:"ANTHROPIC_MODEL" env-default:"claude-3-5-haiku-20241022"`
}

// VisionAvailable returns true if a vision endpoint is configured.
func (c *AIConfig) VisionAvailable() bool {
	return c.VisionBaseURL != "" && c.VisionModel != ""
}

// EmbeddingAvailable returns true if an embedding endpoint is configured.
func (c *AIConfig) EmbeddingAvailable() bool {
	return c.EmbeddingBaseURL != "" && c.EmbeddingModel != ""
}

// AnthropicAvailable returns true if the anthropic fallback is configured.
func (c *AIConfig) AnthropicAvailable() bool {
	return c.AnthropicAPIKey != ""
}

// StorageConfig holds S3-compatible blob store configuration.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint" env:"STORAGE_ENDPOINT" env-default:""`
	AccessKey string `yaml:"-" env:"STORAGE_ACCESS_KEY"` // Secret - not in YAML
	SecretKey string `yaml:"-" env:"STORAGE_SECRET_KEY"` // Secret - not in YAML
	Bucket    string `yaml:"bucket" env:"STORAGE_BUCKET" env-default:"duraeco-reports"`
	Region    string `yaml:"region" env:"STORAGE_REGION" env-default:""`
	UseSSL    bool   `yaml:"use_ssl" env:"STORAGE_USE_SSL" env-default:"true"`

	// PublicBaseURL overrides the URL base used for stored object links.
	// If empty, links are built from the endpoint and bucket.
	PublicBaseURL string `yaml:"public_base_url" env:"STORAGE_PUBLIC_BASE_URL" env-default:""`
}

// IsAvailable returns true if the blob store is configured.
func (c *StorageConfig) IsAvailable() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// AnalysisConfig holds background analysis pipeline settings.
type AnalysisConfig struct {
	// Workers is the number of concurrent analysis workers.
	Workers int `yaml:"workers" env:"ANALYSIS_WORKERS" env-default:"4"`
	// QueueSize is the capacity of the pending analysis job channel.
	QueueSize int `yaml:"queue_size" env:"ANALYSIS_QUEUE_SIZE" env-default:"256"`
	// SweepIntervalMinutes is how often the sweeper looks for stale reports.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes" env:"ANALYSIS_SWEEP_INTERVAL_MINUTES" env-default:"10"`
	// ClaimTimeoutMinutes is how long a report may sit in analyzing before
	// the sweeper reverts it to submitted.
	ClaimTimeoutMinutes int `yaml:"claim_timeout_minutes" env:"ANALYSIS_CLAIM_TIMEOUT_MINUTES" env-default:"30"`
	// VisionTimeoutSeconds bounds a single classification call.
	VisionTimeoutSeconds int `yaml:"vision_timeout_seconds" env:"ANALYSIS_VISION_TIMEOUT_SECONDS" env-default:"120"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Secrets (PGPASSWORD, JWT_SECRET, API keys) must come from environment
// variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	// A containerized engine pointed at localhost means the host machine.
	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.EnableVerification && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when auth verification is enabled")
	}
	if c.Analysis.Workers < 1 {
		return fmt.Errorf("analysis workers must be at least 1")
	}
	if c.Analysis.QueueSize < 1 {
		return fmt.Errorf("analysis queue size must be at least 1")
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
