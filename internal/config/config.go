// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.tutord/config.yaml or ./config.yaml)
//  3. Default values
//
// Security: sensitive fields (passwords, secrets) are masked in MarshalJSON
// and String so they never reach logs. Validation uses sentinel errors
// checkable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates a model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidRetrievalTopK indicates the retrieval top-k is out of range.
	ErrInvalidRetrievalTopK = errors.New("invalid retrieval top k")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingAuthSecret indicates the token signing secret is not set.
	ErrMissingAuthSecret = errors.New("missing auth secret")

	// ErrInvalidAuthSecret indicates the token signing secret is too short.
	ErrInvalidAuthSecret = errors.New("invalid auth secret")

	// ErrInvalidRateLimit indicates the per-user rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidSessionTTL indicates the session TTL is out of range.
	ErrInvalidSessionTTL = errors.New("invalid session TTL")
)

const (
	// DefaultEmbedderModel outputs 3072 dimensions by default but supports
	// truncation to 768 via OutputDimensionality. The pgvector schema uses
	// 768 dimensions; see knowledge.VectorDimension.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultModelName is the generative model used for tutoring answers.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultGuardModelName is the cheaper model used for guardrail checks.
	DefaultGuardModelName = "gemini-2.5-flash-lite"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, secrets), update MarshalJSON.
type Config struct {
	// Generative model configuration
	ModelName      string  `mapstructure:"model_name" json:"model_name"`
	GuardModelName string  `mapstructure:"guard_model_name" json:"guard_model_name"`
	Temperature    float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens" json:"max_tokens"`
	MaxTurns       int     `mapstructure:"max_turns" json:"max_turns"`

	// Retrieval configuration
	EmbedderModel  string  `mapstructure:"embedder_model" json:"embedder_model"`
	RetrievalTopK  int     `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	ScoreThreshold float64 `mapstructure:"score_threshold" json:"score_threshold"`

	// Session configuration
	SessionTTLMinutes int `mapstructure:"session_ttl_minutes" json:"session_ttl_minutes"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP surface configuration
	AuthSecret         string   `mapstructure:"auth_secret" json:"auth_secret"` // SENSITIVE: masked in MarshalJSON
	CORSOrigins        []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy         bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute" json:"rate_limit_per_minute"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".tutord")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("guard_model_name", DefaultGuardModelName)
	viper.SetDefault("temperature", 0.3)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("max_turns", 3)

	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("retrieval_top_k", 5)
	viper.SetDefault("score_threshold", 0.4)

	viper.SetDefault("session_ttl_minutes", 60)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "tutord")
	viper.SetDefault("postgres_password", "tutord_dev_password")
	viper.SetDefault("postgres_db_name", "tutord")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("cors_origins", []string{"http://localhost:4200"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_limit_per_minute", 20)
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; its presence
// is checked in Validate().
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("auth_secret", "TUTORD_AUTH_SECRET")
	mustBind("cors_origins", "TUTORD_CORS_ORIGINS")
	mustBind("trust_proxy", "TUTORD_TRUST_PROXY")
	mustBind("rate_limit_per_minute", "TUTORD_RATE_LIMIT")
	mustBind("model_name", "TUTORD_MODEL_NAME")
	mustBind("guard_model_name", "TUTORD_GUARD_MODEL_NAME")
	mustBind("embedder_model", "TUTORD_EMBEDDER_MODEL")
}

// maskedValue uses full-width blocks so masked output can never be a
// substring of the real secret.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 chars or
// fewer are fully masked; longer ones keep the first and last 2 chars
// for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.AuthSecret = maskSecret(a.AuthSecret)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified generative model name for Genkit.
func (c *Config) FullModelName() string {
	return qualifyModel(c.ModelName)
}

// FullGuardModelName returns the provider-qualified guardrail model name.
func (c *Config) FullGuardModelName() string {
	return qualifyModel(c.GuardModelName)
}

func qualifyModel(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return "googleai/" + name
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
